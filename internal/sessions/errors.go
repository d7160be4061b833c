package sessions

import (
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Error Taxonomy
// -------------------------------------------------------------------------

// Sentinel errors for the session pipeline. Per-session failures wrap
// ErrSessionParse so the builder and enforcer can isolate them with
// errors.Is; everything else aborts the pass.
var (
	// ErrSessionEnumeration indicates the session manager could not be
	// queried at all. Fatal for the pass.
	ErrSessionEnumeration = errors.New("session enumeration failed")

	// ErrSocketTable indicates the TCP socket table could not be read or
	// parsed. Fatal for the pass.
	ErrSocketTable = errors.New("socket table snapshot failed")

	// ErrSessionParse is the umbrella for per-session failures (process
	// read, terminal stat, user lookup). A session that fails this way is
	// skipped; the rest of the pass continues.
	ErrSessionParse = errors.New("session parse failure")

	// ErrDisplayProbe indicates an X11 display could not be queried.
	// Never fatal: the display simply contributes no idle value.
	ErrDisplayProbe = errors.New("display probe failed")
)

// Per-session sub-sentinels. Each wraps ErrSessionParse so that a single
// errors.Is check covers the whole family.
var (
	// ErrUserLookup indicates a uid could not be resolved to a username.
	ErrUserLookup = fmt.Errorf("%w: user lookup", ErrSessionParse)

	// ErrTerminal indicates a terminal device node was absent or
	// inaccessible.
	ErrTerminal = fmt.Errorf("%w: terminal probe", ErrSessionParse)

	// ErrNoIdlenessSource indicates no activity signal produced a
	// candidate duration for a session.
	ErrNoIdlenessSource = fmt.Errorf("%w: no idleness source", ErrSessionParse)
)
