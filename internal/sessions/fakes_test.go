package sessions_test

import (
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// Loopback and non-loopback addresses shared by the fixtures.
var (
	loopback4 = netip.MustParseAddr("127.0.0.1")
	loopback6 = netip.MustParseAddr("::1")
	remote4   = netip.MustParseAddr("192.0.2.10")
)

// testLogger returns a logger that accepts every level and discards the
// output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// -------------------------------------------------------------------------
// Adapter Fakes
// -------------------------------------------------------------------------

type fakeSessionSource struct {
	sessions []sessions.LogindSession
	listErr  error

	terminated   []string
	terminateErr error
}

func (f *fakeSessionSource) List() ([]sessions.LogindSession, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.sessions, nil
}

func (f *fakeSessionSource) TerminateLeader(id string) error {
	f.terminated = append(f.terminated, id)
	return f.terminateErr
}

type fakeSocketSource struct {
	snap sessions.SocketSnapshot
	err  error
}

func (f *fakeSocketSource) Snapshot() (sessions.SocketSnapshot, error) {
	if f.err != nil {
		return sessions.SocketSnapshot{}, f.err
	}
	return f.snap, nil
}

type fakeProcessSource struct {
	byScope map[string][]sessions.Process
	errs    map[string]error
}

func (f *fakeProcessSource) InScope(scopePath string) ([]sessions.Process, error) {
	if err, broken := f.errs[scopePath]; broken {
		return nil, err
	}
	return f.byScope[scopePath], nil
}

type fakeUserDirectory struct {
	names   map[uint32]string
	lookups int
}

func (f *fakeUserDirectory) Lookup(uid uint32) (string, error) {
	f.lookups++
	name, ok := f.names[uid]
	if !ok {
		return "", fmt.Errorf("%w: uid %d", sessions.ErrUserLookup, uid)
	}
	return name, nil
}

type fakeTerminalProbe struct {
	terminals map[string]*fakeTerminal
}

func (f *fakeTerminalProbe) Open(tty string) (sessions.Terminal, error) {
	term, ok := f.terminals[tty]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sessions.ErrTerminal, tty)
	}
	return term, nil
}

type fakeTerminal struct {
	name  string
	atime time.Time
	mtime time.Time

	atimeErr error
	mtimeErr error

	atimeSets []time.Time
}

func (t *fakeTerminal) Name() string {
	return t.name
}

func (t *fakeTerminal) Atime() (time.Time, error) {
	if t.atimeErr != nil {
		return time.Time{}, t.atimeErr
	}
	return t.atime, nil
}

func (t *fakeTerminal) Mtime() (time.Time, error) {
	if t.mtimeErr != nil {
		return time.Time{}, t.mtimeErr
	}
	return t.mtime, nil
}

func (t *fakeTerminal) SetAtime(at time.Time) error {
	t.atimeSets = append(t.atimeSets, at)
	t.atime = at
	return nil
}

type fakeDisplayProbe struct {
	idle map[string]time.Duration

	probes []string
}

func (f *fakeDisplayProbe) IdleTime(display, xauthority string) (time.Duration, error) {
	f.probes = append(f.probes, display+"|"+xauthority)
	idle, ok := f.idle[display]
	if !ok {
		return 0, fmt.Errorf("%w: %s", sessions.ErrDisplayProbe, display)
	}
	return idle, nil
}

// -------------------------------------------------------------------------
// Fixture Helpers
// -------------------------------------------------------------------------

// displayEnv builds the two-variable environment of an X11-capable
// process.
func displayEnv(display, xauthority string) map[string]string {
	return map[string]string{"DISPLAY": display, "XAUTHORITY": xauthority}
}

// loopbackSocket builds a 127.0.0.1 socket for snapshot fixtures.
func loopbackSocket(port uint16, pids ...int) sessions.Socket {
	return sessions.Socket{Addr: loopback4, Port: port, PIDs: pids}
}
