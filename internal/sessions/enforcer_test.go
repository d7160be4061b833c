package sessions_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dantte-lp/stop-idle-sessions/internal/metrics"
	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// runEnforcer evaluates the arena against the given policy and returns
// the session ids whose leaders were terminated.
func runEnforcer(t *testing.T, arena []*sessions.Session, cfg sessions.EnforcerConfig, opts ...sessions.EnforcerOption) []string {
	t.Helper()

	source := &fakeSessionSource{}
	g := sessions.NewGraph(arena, testLogger())
	sessions.NewEnforcer(source, cfg, testLogger(), opts...).Run(g, time.Now())
	return source.terminated
}

func TestEnforcerActiveSessionLeftAlone(t *testing.T) {
	t.Parallel()

	// Scenario: active SSH with recent keystrokes.
	now := time.Now()
	s := ttySession("1", now, 30*time.Second, 30*time.Second)

	terminated := runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{
		Timeout: 15 * time.Minute,
	})
	if len(terminated) != 0 {
		t.Errorf("terminated = %v, want none", terminated)
	}
}

func TestEnforcerIdleSessionTerminated(t *testing.T) {
	t.Parallel()

	// Scenario: SSH idle for twice the threshold.
	now := time.Now()
	s := ttySession("7", now, 30*time.Minute, 30*time.Minute)
	s.Logind.ID = "7"

	terminated := runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{
		Timeout: 15 * time.Minute,
	})
	if len(terminated) != 1 || terminated[0] != "7" {
		t.Errorf("terminated = %v, want [7]", terminated)
	}
}

func TestEnforcerTunnelKeepsOuterAlive(t *testing.T) {
	t.Parallel()

	// Scenario: idle SSH tunneling into an active VNC session. The
	// outer session survives through the tunnel; the inner one is
	// enforced on its own signals.
	now := time.Now()

	outer := ttySession("14", now, 30*time.Minute, 30*time.Minute)
	outer.Logind.ID = "14"
	outer.Processes = []sessions.SessionProcess{
		{Process: sessions.Process{PID: 200}, TunneledSessions: []int{1}},
	}

	inner := ttySession("7", now, 30*time.Minute, 30*time.Minute)
	inner.Logind.ID = "7"
	inner.DisplayIdle = &sessions.DisplayIdle{Display: ":1", Idle: 2 * time.Minute}

	terminated := runEnforcer(t, []*sessions.Session{outer, inner}, sessions.EnforcerConfig{
		Timeout: 15 * time.Minute,
	})
	if len(terminated) != 0 {
		t.Errorf("terminated = %v, want none (display keeps both alive)", terminated)
	}

	// Without the display signal the inner session's own tty is stale,
	// so the tunnel no longer offers the outer session a fresher signal
	// and both leaders go. Terminating the inner leader does not end a
	// VNC server process, which is not the leader.
	inner.DisplayIdle = nil
	inner.Processes = nil

	terminated = runEnforcer(t, []*sessions.Session{outer, inner}, sessions.EnforcerConfig{
		Timeout: 15 * time.Minute,
	})
	if len(terminated) != 2 || terminated[0] != "14" || terminated[1] != "7" {
		// Outer now sees only the inner tty (30m) and its own (30m).
		t.Errorf("terminated = %v, want [14 7]", terminated)
	}
}

func TestEnforcerSkipsIneligible(t *testing.T) {
	t.Parallel()

	now := time.Now()
	term := &fakeTerminal{name: "tty1", atime: now.Add(-10 * time.Hour), mtime: now.Add(-10 * time.Hour)}

	arena := []*sessions.Session{
		// Scenario: graphical seat, hours idle by loginctl's measure.
		{
			Logind:   sessions.LogindSession{ID: "c1", Type: "wayland", TTY: "tty1", Leader: 500},
			TTY:      term,
			Username: "alice",
		},
		// Scenario: excluded automation user.
		{
			Logind:   sessions.LogindSession{ID: "16", Type: "tty", TTY: "tty1", Leader: 600},
			TTY:      term,
			Username: "ansible",
		},
		// Scenario: lingering session.
		{
			Logind:   sessions.LogindSession{ID: "19", Type: "tty", TTY: "tty1", Leader: 0},
			TTY:      term,
			Username: "alice",
		},
	}

	terminated := runEnforcer(t, arena, sessions.EnforcerConfig{
		Timeout:       15 * time.Minute,
		ExcludedUsers: []string{"ansible"},
	})
	if len(terminated) != 0 {
		t.Errorf("terminated = %v, want none", terminated)
	}
}

func TestEnforcerDryRun(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := ttySession("7", now, 30*time.Minute, 30*time.Minute)

	terminated := runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{
		Timeout: 15 * time.Minute,
		DryRun:  true,
	})
	if len(terminated) != 0 {
		t.Errorf("dry-run terminated = %v, want none", terminated)
	}
}

func TestEnforcerZeroTimeout(t *testing.T) {
	t.Parallel()

	// With a zero threshold every eligible session goes, however
	// recently active.
	now := time.Now()
	s := ttySession("7", now, time.Second, time.Second)

	terminated := runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{})
	if len(terminated) != 1 {
		t.Errorf("terminated = %v, want [7]", terminated)
	}
}

func TestEnforcerClockSkewNotTerminated(t *testing.T) {
	t.Parallel()

	// Future atime yields a negative idleness, strictly below any
	// positive threshold.
	now := time.Now()
	s := &sessions.Session{
		Logind:   sessions.LogindSession{ID: "3", Type: "tty", TTY: "pts/0", Leader: 100},
		TTY:      &fakeTerminal{name: "pts/0", atime: now.Add(time.Minute), mtime: now.Add(time.Minute)},
		Username: "alice",
	}

	terminated := runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{
		Timeout: 15 * time.Minute,
	})
	if len(terminated) != 0 {
		t.Errorf("terminated = %v, want none", terminated)
	}
}

func TestEnforcerEvaluationFailureLeavesSessionAlone(t *testing.T) {
	t.Parallel()

	// The terminal cannot be stat'ed: logged, not terminated, pass continues.
	now := time.Now()
	broken := &sessions.Session{
		Logind:   sessions.LogindSession{ID: "8", Type: "tty", TTY: "pts/0", Leader: 100},
		TTY:      &fakeTerminal{name: "pts/0", atimeErr: sessions.ErrTerminal},
		Username: "alice",
	}
	idle := ttySession("9", now, 30*time.Minute, 30*time.Minute)
	idle.Logind.ID = "9"

	terminated := runEnforcer(t, []*sessions.Session{broken, idle}, sessions.EnforcerConfig{
		Timeout: 15 * time.Minute,
	})
	if len(terminated) != 1 || terminated[0] != "9" {
		t.Errorf("terminated = %v, want [9]", terminated)
	}
}

func TestEnforcerTerminateFailureTolerated(t *testing.T) {
	t.Parallel()

	now := time.Now()
	a := ttySession("1", now, 30*time.Minute, 30*time.Minute)
	a.Logind.ID = "1"
	b := ttySession("2", now, 30*time.Minute, 30*time.Minute)
	b.Logind.ID = "2"

	source := &fakeSessionSource{terminateErr: sessions.ErrSessionEnumeration}
	g := sessions.NewGraph([]*sessions.Session{a, b}, testLogger())
	sessions.NewEnforcer(source, sessions.EnforcerConfig{Timeout: 15 * time.Minute}, testLogger()).Run(g, time.Now())

	// Both terminations were attempted despite the first failing.
	if len(source.terminated) != 2 {
		t.Errorf("terminate attempts = %v, want both sessions", source.terminated)
	}
}

func TestEnforcerSyncTTYAtime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	term := &fakeTerminal{
		name:  "pts/0",
		atime: now.Add(-20 * time.Minute),
		mtime: now.Add(-5 * time.Minute),
	}
	s := &sessions.Session{
		Logind:   sessions.LogindSession{ID: "6", Type: "tty", TTY: "pts/0", Leader: 100},
		TTY:      term,
		Username: "alice",
	}

	// Off by default: no mutation.
	runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{Timeout: 15 * time.Minute})
	if len(term.atimeSets) != 0 {
		t.Fatalf("atime mutated %v with sync disabled", term.atimeSets)
	}

	// Enabled: atime is raised to mtime before evaluation.
	runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{
		Timeout:      15 * time.Minute,
		SyncTTYAtime: true,
	})
	if len(term.atimeSets) != 1 || !term.atimeSets[0].Equal(term.mtime) {
		t.Errorf("atime sets = %v, want one set to mtime %v", term.atimeSets, term.mtime)
	}

	// Dry-run must never mutate, even when enabled.
	term.atimeSets = nil
	term.atime = now.Add(-20 * time.Minute)
	runEnforcer(t, []*sessions.Session{s}, sessions.EnforcerConfig{
		Timeout:      15 * time.Minute,
		SyncTTYAtime: true,
		DryRun:       true,
	})
	if len(term.atimeSets) != 0 {
		t.Errorf("dry-run mutated atime %v", term.atimeSets)
	}
}

func TestEnforcerMetrics(t *testing.T) {
	t.Parallel()

	now := time.Now()

	idle := ttySession("1", now, 30*time.Minute, 30*time.Minute)
	skipped := &sessions.Session{
		Logind:   sessions.LogindSession{ID: "c1", Type: "wayland", Leader: 100},
		Username: "alice",
	}
	broken := &sessions.Session{
		Logind:   sessions.LogindSession{ID: "8", Type: "tty", TTY: "pts/0", Leader: 100},
		TTY:      &fakeTerminal{name: "pts/0", atimeErr: sessions.ErrTerminal},
		Username: "alice",
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	runEnforcer(t, []*sessions.Session{idle, skipped, broken},
		sessions.EnforcerConfig{Timeout: 15 * time.Minute},
		sessions.WithEnforcerMetrics(collector),
	)

	if got := testutil.ToFloat64(collector.SessionsSeen); got != 3 {
		t.Errorf("SessionsSeen = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.SessionsSkipped); got != 1 {
		t.Errorf("SessionsSkipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SessionsTerminated); got != 1 {
		t.Errorf("SessionsTerminated = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.SessionErrors); got != 1 {
		t.Errorf("SessionErrors = %v, want 1", got)
	}
}
