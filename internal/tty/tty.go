// Package tty probes terminal device nodes for activity timestamps.
package tty

import (
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// Probe opens terminal handles under a device root.
type Probe struct {
	devRoot string
}

// NewProbe creates a Probe over /dev.
func NewProbe() *Probe {
	return NewProbeAt("/dev")
}

// NewProbeAt creates a Probe over an alternate device root.
func NewProbeAt(devRoot string) *Probe {
	return &Probe{devRoot: devRoot}
}

// Open resolves a tty name such as "pts/3" or "tty1" against the device
// root and verifies the node is stat-able.
func (p *Probe) Open(name string) (sessions.Terminal, error) {
	path := filepath.Join(p.devRoot, name)

	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", sessions.ErrTerminal, path, err)
	}

	return &terminal{name: name, path: path}, nil
}

// terminal remembers its path and stats the node on every call; it owns
// no kernel resources between calls.
type terminal struct {
	name string
	path string
}

func (t *terminal) Name() string {
	return t.name
}

// Atime returns the node's access time. The kernel touches it whenever
// the user enters keyboard input.
func (t *terminal) Atime() (time.Time, error) {
	st, err := t.stat()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(st.Atim.Unix()), nil
}

// Mtime returns the node's modification time. Touched by keyboard input
// and by program output onto the screen.
func (t *terminal) Mtime() (time.Time, error) {
	st, err := t.stat()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(st.Mtim.Unix()), nil
}

// SetAtime sets the node's access time while preserving its current
// modification time.
func (t *terminal) SetAtime(at time.Time) error {
	st, err := t.stat()
	if err != nil {
		return err
	}

	times := []unix.Timeval{
		unix.NsecToTimeval(at.UnixNano()),
		unix.NsecToTimeval(time.Unix(st.Mtim.Unix()).UnixNano()),
	}
	if err := unix.Utimes(t.path, times); err != nil {
		return fmt.Errorf("%w: utimes %s: %w", sessions.ErrTerminal, t.path, err)
	}
	return nil
}

func (t *terminal) stat() (unix.Stat_t, error) {
	var st unix.Stat_t
	if err := unix.Stat(t.path, &st); err != nil {
		return unix.Stat_t{}, fmt.Errorf("%w: stat %s: %w", sessions.ErrTerminal, t.path, err)
	}
	return st, nil
}
