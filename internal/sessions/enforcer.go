package sessions

import (
	"log/slog"
	"time"

	"github.com/dantte-lp/stop-idle-sessions/internal/metrics"
)

// -------------------------------------------------------------------------
// Enforcer
// -------------------------------------------------------------------------

// EnforcerConfig holds the operator policy for one enforcement pass.
type EnforcerConfig struct {
	// Timeout is the idleness threshold at or above which a session's
	// leader is terminated.
	Timeout time.Duration

	// DryRun logs the decisions without terminating anything.
	DryRun bool

	// ExcludedUsers are usernames whose sessions are never enforced.
	ExcludedUsers []string

	// SyncTTYAtime enables the legacy side effect of raising a
	// terminal's atime to its mtime before evaluation, so that program
	// output counts as activity for the in-kernel idle check. Skipped
	// under DryRun.
	SyncTTYAtime bool
}

// EnforcerOption customizes an Enforcer.
type EnforcerOption func(*Enforcer)

// WithEnforcerMetrics wires a metrics collector into the enforcer.
func WithEnforcerMetrics(c *metrics.Collector) EnforcerOption {
	return func(e *Enforcer) {
		e.metrics = c
	}
}

// Enforcer compares session idleness to the configured threshold and
// terminates the leaders of sessions idle past it.
type Enforcer struct {
	source  SessionSource
	cfg     EnforcerConfig
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewEnforcer creates an Enforcer terminating through source.
func NewEnforcer(source SessionSource, cfg EnforcerConfig, logger *slog.Logger, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{source: source, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates every session in the graph once. Per-session evaluation
// failures are logged and leave the session alone; the pass continues.
func (e *Enforcer) Run(g *Graph, now time.Time) {
	for idx, s := range g.Sessions {
		if e.metrics != nil {
			e.metrics.SessionsSeen.Inc()
		}

		if reason, skip := s.SkipReason(e.cfg.ExcludedUsers); skip {
			e.logger.Debug("skipping ineligible session",
				slog.String("session_id", s.Logind.ID),
				slog.String("reason", reason),
			)
			if e.metrics != nil {
				e.metrics.SessionsSkipped.Inc()
			}
			continue
		}

		if e.cfg.SyncTTYAtime && !e.cfg.DryRun {
			e.syncAtime(s)
		}

		idle, err := g.Idleness(idx, now)
		if err != nil {
			e.logger.Warn("could not determine session idleness",
				slog.String("session_id", s.Logind.ID),
				slog.String("owner", s.Username+"@"+s.TTYName()),
				slog.String("error", err.Error()),
			)
			if e.metrics != nil {
				e.metrics.SessionErrors.Inc()
			}
			continue
		}

		if idle < e.cfg.Timeout {
			continue
		}

		e.logger.Warn("stopping idle session leader",
			slog.Int("leader_pid", s.Logind.Leader),
			slog.String("session_id", s.Logind.ID),
			slog.String("owner", s.Username+"@"+s.TTYName()),
			slog.Int64("idle_minutes", int64(idle/time.Minute)),
			slog.Bool("dry_run", e.cfg.DryRun),
		)
		if e.metrics != nil {
			e.metrics.SessionsTerminated.Inc()
		}

		if e.cfg.DryRun {
			continue
		}

		if err := e.source.TerminateLeader(s.Logind.ID); err != nil {
			e.logger.Warn("failed to terminate session leader",
				slog.String("session_id", s.Logind.ID),
				slog.String("error", err.Error()),
			)
			if e.metrics != nil {
				e.metrics.SessionErrors.Inc()
			}
		}
	}
}

// syncAtime raises the terminal's atime to its mtime when it lags
// behind. Failures only cost the side effect, never the session.
func (e *Enforcer) syncAtime(s *Session) {
	if s.TTY == nil {
		return
	}

	atime, err := s.TTY.Atime()
	if err == nil {
		var mtime time.Time
		mtime, err = s.TTY.Mtime()
		if err == nil && atime.Before(mtime) {
			err = s.TTY.SetAtime(mtime)
		}
	}
	if err != nil {
		e.logger.Debug("could not sync terminal atime",
			slog.String("session_id", s.Logind.ID),
			slog.String("tty", s.TTY.Name()),
			slog.String("error", err.Error()),
		)
	}
}
