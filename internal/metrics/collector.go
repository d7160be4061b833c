// Package metrics exposes per-pass counters in Prometheus form.
//
// The process is a one-shot evaluator driven by a timer, so there is no
// scrape endpoint; instead the registry can be written out in text
// exposition format for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "stop_idle_sessions"

// Collector holds the pass counters.
type Collector struct {
	// SessionsSeen counts every session the pass reviewed.
	SessionsSeen prometheus.Counter

	// SessionsSkipped counts sessions the eligibility filter excluded.
	SessionsSkipped prometheus.Counter

	// SessionsTerminated counts sessions whose leader was terminated
	// (or would have been, under dry-run).
	SessionsTerminated prometheus.Counter

	// SessionErrors counts sessions whose idleness could not be
	// determined or whose termination failed.
	SessionErrors prometheus.Counter

	// LastRun records the wall-clock time of the pass.
	LastRun prometheus.Gauge

	registry *prometheus.Registry
}

// NewCollector creates the pass counters and registers them on reg.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		SessionsSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions reviewed during the pass.",
		}),
		SessionsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_skipped_total",
			Help:      "Sessions excluded by the eligibility filter.",
		}),
		SessionsTerminated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_terminated_total",
			Help:      "Sessions whose leader was terminated (or would have been under dry-run).",
		}),
		SessionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_errors_total",
			Help:      "Sessions with evaluation or termination failures.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed pass.",
		}),
		registry: reg,
	}

	reg.MustRegister(
		c.SessionsSeen,
		c.SessionsSkipped,
		c.SessionsTerminated,
		c.SessionErrors,
		c.LastRun,
	)

	return c
}

// WriteTextfile gathers the registry and writes it atomically to path in
// text exposition format. The write goes to a temporary file in the same
// directory followed by a rename, so the textfile collector never reads
// a partial file.
func (c *Collector) WriteTextfile(path string) error {
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create metrics tempfile: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("encode metric family %s: %w", mf.GetName(), err)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics tempfile: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publish metrics textfile: %w", err)
	}
	return nil
}
