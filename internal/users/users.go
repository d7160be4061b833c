// Package users resolves numeric uids to symbolic usernames.
package users

import (
	"fmt"
	"os/user"
	"strconv"

	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// Directory is a UserDirectory over the host's NSS user database. It is
// stateless; the per-pass memoization lives in the graph builder.
type Directory struct{}

// NewDirectory creates a Directory.
func NewDirectory() *Directory {
	return &Directory{}
}

// Lookup resolves uid to a username.
func (d *Directory) Lookup(uid uint32) (string, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return "", fmt.Errorf("%w: uid %d: %w", sessions.ErrUserLookup, uid, err)
	}
	return u.Username, nil
}
