package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// -------------------------------------------------------------------------
// Idleness Evaluator
// -------------------------------------------------------------------------

// Graph is the session arena produced by a Builder for one pass.
// SessionProcess.TunneledSessions indexes into Sessions.
type Graph struct {
	Sessions []*Session

	logger *slog.Logger
}

// NewGraph assembles a Graph directly from already-built sessions.
// Normal callers get their Graph from Builder.Build; this exists for
// evaluating hand-assembled arenas.
func NewGraph(arena []*Session, logger *slog.Logger) *Graph {
	return &Graph{Sessions: arena, logger: logger}
}

// Idleness computes the most optimistic idleness for the session at
// arena index idx: the minimum over every applicable activity signal of
// the elapsed time since that signal last updated.
//
// Candidate sources, in tie-breaking order: terminal atime, terminal
// mtime, display-reported idleness, and the idleness of tunneled
// sessions. The tunneled branch recurses exactly one level deep, which
// bounds the analysis to depth two and makes tunnel cycles (including
// self-loops) harmless without visited-set bookkeeping. Tunneled inner
// sessions are evaluated regardless of their own eligibility: tunnel
// backends are frequently graphical sessions the filter would exclude,
// yet their activity must still count.
//
// When no source yields a candidate, the error wraps
// ErrNoIdlenessSource.
func (g *Graph) Idleness(idx int, now time.Time) (time.Duration, error) {
	return g.idleness(idx, now, false)
}

func (g *Graph) idleness(idx int, now time.Time, nested bool) (time.Duration, error) {
	s := g.Sessions[idx]

	var (
		minimum time.Duration
		source  string
		found   bool
	)
	consider := func(idle time.Duration, src string) {
		if !found || idle < minimum {
			minimum = idle
			source = src
			found = true
		}
	}

	if s.TTY != nil {
		atime, err := s.TTY.Atime()
		if err != nil {
			return 0, fmt.Errorf("%w: session %s: %w", ErrTerminal, s.Logind.ID, err)
		}
		consider(now.Sub(atime), "atime on "+s.TTY.Name())

		mtime, err := s.TTY.Mtime()
		if err != nil {
			return 0, fmt.Errorf("%w: session %s: %w", ErrTerminal, s.Logind.ID, err)
		}
		consider(now.Sub(mtime), "mtime on "+s.TTY.Name())
	}

	if s.DisplayIdle != nil {
		consider(s.DisplayIdle.Idle, "X11 idleness on DISPLAY="+s.DisplayIdle.Display)
	}

	if !nested {
		for pi := range s.Processes {
			for _, inner := range s.Processes[pi].TunneledSessions {
				innerIdle, err := g.idleness(inner, now, true)
				if err != nil {
					if errors.Is(err, ErrSessionParse) {
						// The inner branch simply contributes no candidate.
						continue
					}
					return 0, err
				}
				consider(innerIdle, "idleness of nested session "+g.Sessions[inner].Logind.ID)
			}
		}
	}

	if !found {
		return 0, fmt.Errorf("%w: session %s", ErrNoIdlenessSource, s.Logind.ID)
	}

	g.logger.Debug("computed session idleness",
		slog.String("session_id", s.Logind.ID),
		slog.Duration("idle", minimum),
		slog.String("source", source),
	)
	return minimum, nil
}
