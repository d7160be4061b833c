package sessions

import "log/slog"

// -------------------------------------------------------------------------
// Display Collector
// -------------------------------------------------------------------------

// displayKey identifies a probe-able display: a session may carry several
// X11-capable processes pointing at different displays (a tunneled Xvnc
// plus an unrelated helper), and the same display may appear under
// multiple processes.
type displayKey struct {
	display    string
	xauthority string
}

// displayCollector accumulates the distinct (DISPLAY, XAUTHORITY) pairs
// seen across a session's processes and probes each at most once.
type displayCollector struct {
	probe  DisplayProbe
	logger *slog.Logger

	keys []displayKey
	seen map[displayKey]struct{}
}

func newDisplayCollector(probe DisplayProbe, logger *slog.Logger) *displayCollector {
	return &displayCollector{
		probe:  probe,
		logger: logger,
		seen:   make(map[displayKey]struct{}),
	}
}

// add records the process's display candidate. Only processes with both
// DISPLAY and XAUTHORITY set participate.
func (c *displayCollector) add(p Process) {
	display := p.Environ["DISPLAY"]
	xauthority := p.Environ["XAUTHORITY"]
	if display == "" || xauthority == "" {
		return
	}

	key := displayKey{display: display, xauthority: xauthority}
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}
	c.keys = append(c.keys, key)
}

// leastIdle probes every collected display and returns the one with the
// smallest idle duration (most recent activity), or nil when no probe
// succeeded. Probe failures contribute nothing and are logged at debug.
func (c *displayCollector) leastIdle() *DisplayIdle {
	var best *DisplayIdle

	for _, key := range c.keys {
		idle, err := c.probe.IdleTime(key.display, key.xauthority)
		if err != nil {
			c.logger.Debug("display probe failed",
				slog.String("display", key.display),
				slog.String("error", err.Error()),
			)
			continue
		}

		if best == nil || idle < best.Idle {
			best = &DisplayIdle{Display: key.display, Idle: idle}
		}
	}

	return best
}
