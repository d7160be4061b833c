package sessions

import (
	"errors"
	"fmt"
	"log/slog"
)

// -------------------------------------------------------------------------
// Session Graph Builder
// -------------------------------------------------------------------------

// Sources bundles the platform adapters the builder consumes.
type Sources struct {
	Sessions  SessionSource
	Sockets   SocketSource
	Processes ProcessSource
	Users     UserDirectory
	Terminals TerminalProbe
	Displays  DisplayProbe
}

// Builder assembles the cross-referenced session graph for one
// evaluation pass. It exclusively constructs and owns all records of
// that pass; nothing persists across passes.
type Builder struct {
	src    Sources
	logger *slog.Logger
}

// NewBuilder creates a Builder over the given adapters.
func NewBuilder(src Sources, logger *slog.Logger) *Builder {
	return &Builder{src: src, logger: logger}
}

// Build performs the two-pass graph construction.
//
// Pass one assembles every session in isolation: username, scope
// processes, per-process tunnel backends, representative display, and
// terminal handle. Pass two cross-joins the completed sessions to
// resolve tunnel backends to the sessions containing them.
//
// A session whose assembly fails with an ErrSessionParse-family error is
// logged and omitted; any other error aborts the build.
func (b *Builder) Build() (*Graph, error) {
	logindSessions, err := b.src.Sessions.List()
	if err != nil {
		return nil, fmt.Errorf("list logind sessions: %w", err)
	}

	snap, err := b.src.Sockets.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot socket table: %w", err)
	}
	conns := ResolveLoopback(snap)

	usernames := make(map[uint32]string)

	arena := make([]*Session, 0, len(logindSessions))
	for _, ls := range logindSessions {
		s, err := b.buildSession(ls, conns, usernames)
		if err != nil {
			if errors.Is(err, ErrSessionParse) {
				b.logger.Warn("could not parse session, skipping",
					slog.String("session_id", ls.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, err
		}
		arena = append(arena, s)
	}

	resolveTunnelSessions(arena)

	g := &Graph{Sessions: arena, logger: b.logger}
	b.logGraph(g)
	return g, nil
}

// buildSession assembles one session record with empty TunneledSessions.
func (b *Builder) buildSession(ls LogindSession, conns []LoopbackConnection, usernames map[uint32]string) (*Session, error) {
	username, ok := usernames[ls.UID]
	if !ok {
		var err error
		username, err = b.src.Users.Lookup(ls.UID)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", ls.ID, err)
		}
		usernames[ls.UID] = username
	}

	procs, err := b.src.Processes.InScope(ls.ScopePath)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", ls.ID, err)
	}

	displays := newDisplayCollector(b.src.Displays, b.logger)

	sessionProcs := make([]SessionProcess, 0, len(procs))
	for _, p := range procs {
		displays.add(p)
		sessionProcs = append(sessionProcs, SessionProcess{
			Process:           p,
			TunneledProcesses: tunnelBackends(p, conns),
		})
	}

	var term Terminal
	if ls.TTY != "" {
		term, err = b.src.Terminals.Open(ls.TTY)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", ls.ID, err)
		}
	}

	return &Session{
		Logind:      ls,
		TTY:         term,
		Username:    username,
		DisplayIdle: displays.leastIdle(),
		Processes:   sessionProcs,
	}, nil
}

// tunnelBackends collects the server-side processes of every loopback
// connection whose client-side pid set contains p, deduplicated by pid.
func tunnelBackends(p Process, conns []LoopbackConnection) []Process {
	var backends []Process
	seen := make(map[int]struct{})

	for _, conn := range conns {
		if !containsPID(conn.Client.PIDs, p.PID) {
			continue
		}
		for _, serverPID := range conn.Server.PIDs {
			if _, dup := seen[serverPID]; dup {
				continue
			}
			seen[serverPID] = struct{}{}
			backends = append(backends, Process{PID: serverPID})
		}
	}

	return backends
}

func containsPID(pids []int, pid int) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}

// resolveTunnelSessions is pass two: for every ordered session pair
// (A, B) and session-process pair (pa, pb), if pb's process appears in
// pa's tunnel backends, B's arena index is appended to pa's
// TunneledSessions. Self-loops are possible; duplicates are permitted.
func resolveTunnelSessions(arena []*Session) {
	for _, sa := range arena {
		for pi := range sa.Processes {
			pa := &sa.Processes[pi]
			if len(pa.TunneledProcesses) == 0 {
				continue
			}
			for bi, sb := range arena {
				for _, pb := range sb.Processes {
					for _, backend := range pa.TunneledProcesses {
						if backend.PID == pb.Process.PID {
							pa.TunneledSessions = append(pa.TunneledSessions, bi)
						}
					}
				}
			}
		}
	}
}

// logGraph emits the per-session debug summary of the built graph.
func (b *Builder) logGraph(g *Graph) {
	b.logger.Debug("identified sessions for review", slog.Int("count", len(g.Sessions)))

	for _, s := range g.Sessions {
		tunnels := 0
		backendSessions := 0
		for _, p := range s.Processes {
			tunnels += len(p.TunneledProcesses)
			backendSessions += len(p.TunneledSessions)
		}

		b.logger.Debug("session graph entry",
			slog.String("session_id", s.Logind.ID),
			slog.String("owner", s.Username+"@"+s.TTYName()),
			slog.Int("processes", len(s.Processes)),
			slog.Int("tunnels", tunnels),
			slog.Int("backend_sessions", backendSessions),
		)
	}
}
