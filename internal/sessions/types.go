package sessions

import (
	"net/netip"
	"time"
)

// -------------------------------------------------------------------------
// Platform Adapter Contracts
// -------------------------------------------------------------------------

// SessionSource enumerates logind sessions and terminates session leaders.
type SessionSource interface {
	// List returns all current logind sessions. Errors wrap
	// ErrSessionEnumeration.
	List() ([]LogindSession, error)

	// TerminateLeader asks the session manager to end the session with
	// the given id. Idempotent: terminating an already-gone session is
	// not an error.
	TerminateLeader(id string) error
}

// SocketSource snapshots the host's TCP socket table.
type SocketSource interface {
	// Snapshot returns the current listening ports and established
	// connections. Errors wrap ErrSocketTable.
	Snapshot() (SocketSnapshot, error)
}

// ProcessSource lists the processes contained in a control-group scope.
type ProcessSource interface {
	// InScope returns the processes whose pids appear in the scope's
	// cgroup, with Environ restricted to DISPLAY and XAUTHORITY.
	// Processes that exit between enumeration and read are silently
	// omitted. Errors wrap ErrSessionParse.
	InScope(scopePath string) ([]Process, error)
}

// UserDirectory resolves numeric uids to symbolic usernames.
type UserDirectory interface {
	// Lookup returns the username for uid. Errors wrap ErrUserLookup.
	Lookup(uid uint32) (string, error)
}

// TerminalProbe opens terminal device handles.
type TerminalProbe interface {
	// Open resolves a tty name such as "pts/3" or "tty1" against /dev
	// and returns a handle. Errors wrap ErrTerminal.
	Open(tty string) (Terminal, error)
}

// DisplayProbe queries the X11 Screen Saver extension.
type DisplayProbe interface {
	// IdleTime returns the display-reported idle duration for the given
	// DISPLAY, authenticating with the given XAUTHORITY file. Errors
	// wrap ErrDisplayProbe.
	IdleTime(display, xauthority string) (time.Duration, error)
}

// Terminal is a handle on a terminal device node. It remembers its path
// but owns no kernel resources between calls.
type Terminal interface {
	// Name returns the tty name the handle was opened with.
	Name() string

	// Atime returns the device node's access time. Touched whenever the
	// user enters keyboard input.
	Atime() (time.Time, error)

	// Mtime returns the device node's modification time. Touched by
	// keyboard input and by program output onto the screen.
	Mtime() (time.Time, error)

	// SetAtime sets the device node's access time, preserving mtime.
	SetAtime(at time.Time) error
}

// -------------------------------------------------------------------------
// Plain Data Records
// -------------------------------------------------------------------------

// Process is a single OS process. Identity is the pid alone.
type Process struct {
	// PID is the OS process id.
	PID int

	// Cmdline is the process command line as an opaque string.
	Cmdline string

	// Environ holds the process environment restricted to the DISPLAY
	// and XAUTHORITY variables.
	Environ map[string]string
}

// Socket is one endpoint of a TCP connection together with the processes
// holding open descriptors on it.
type Socket struct {
	Addr netip.Addr
	Port uint16

	// PIDs are the processes with an open descriptor on this socket.
	PIDs []int
}

// ConnPair is an established TCP connection seen from one endpoint.
type ConnPair struct {
	Local Socket
	Peer  Socket
}

// SocketSnapshot is a point-in-time view of the host's TCP state.
type SocketSnapshot struct {
	// ListeningPorts are the local ports with a listening socket.
	ListeningPorts map[uint16]struct{}

	// Established are the established connections, one entry per
	// connection.
	Established []ConnPair
}

// LoopbackConnection is a directed loopback TCP connection. The server
// side is the endpoint whose port appears in the listening-port set.
type LoopbackConnection struct {
	Client Socket
	Server Socket
}

// LogindSession is the platform view of one logind session.
type LogindSession struct {
	// ID is the opaque session id, e.g. "7" or "c1".
	ID string

	// UID is the owning user's numeric id.
	UID uint32

	// Type is the logind session type: "tty", "x11", "wayland", "mir",
	// "unspecified", ...
	Type string

	// TTY is the assigned terminal name, or "" when none is assigned.
	TTY string

	// Leader is the session-leader pid, or 0 when the leader has exited
	// (a "lingering" session).
	Leader int

	// Scope is the control-group scope unit name.
	Scope string

	// ScopePath is the scope's hierarchy path below the cgroup root.
	ScopePath string
}

// SessionProcess is a process inside a session together with its resolved
// tunnel edges. Identity is the contained process's pid.
type SessionProcess struct {
	// Process is the underlying process record.
	Process Process

	// TunneledProcesses are the server-side peers of loopback
	// connections this process is a client of, deduplicated by pid.
	TunneledProcesses []Process

	// TunneledSessions are arena indices of the sessions containing the
	// tunneled processes. Indices rather than pointers so that tunnel
	// cycles (including self-loops) stay representable. Duplicates are
	// permitted.
	TunneledSessions []int
}

// DisplayIdle is a graphical display identifier paired with the idle
// duration the X11 Screen Saver extension reported for it.
type DisplayIdle struct {
	// Display is the display identifier, e.g. ":1".
	Display string

	// Idle is the display-reported idle duration.
	Idle time.Duration
}

// Session is the fully cross-referenced core record for one logind
// session. Identity is the logind session id.
type Session struct {
	// Logind is the underlying platform session.
	Logind LogindSession

	// TTY is the session's terminal handle, or nil when the session has
	// no assigned terminal.
	TTY Terminal

	// Username is the resolved symbolic name for Logind.UID.
	Username string

	// DisplayIdle is the representative display and its idle duration,
	// or nil when no display probe succeeded.
	DisplayIdle *DisplayIdle

	// Processes are the session's processes in scope order.
	Processes []SessionProcess
}

// TTYName returns the session's terminal name, or "notty" when the
// session has no assigned terminal.
func (s *Session) TTYName() string {
	if s.TTY == nil {
		return "notty"
	}
	return s.TTY.Name()
}
