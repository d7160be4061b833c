// stop-idle-sessions terminates systemd-logind sessions that have been
// idle beyond an operator-defined threshold. One invocation performs one
// evaluation pass; a systemd timer handles the cadence.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dantte-lp/stop-idle-sessions/internal/config"
	journallog "github.com/dantte-lp/stop-idle-sessions/internal/journal"
	"github.com/dantte-lp/stop-idle-sessions/internal/logind"
	"github.com/dantte-lp/stop-idle-sessions/internal/metrics"
	"github.com/dantte-lp/stop-idle-sessions/internal/ps"
	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
	"github.com/dantte-lp/stop-idle-sessions/internal/sockets"
	"github.com/dantte-lp/stop-idle-sessions/internal/tty"
	"github.com/dantte-lp/stop-idle-sessions/internal/users"
	appversion "github.com/dantte-lp/stop-idle-sessions/internal/version"
	"github.com/dantte-lp/stop-idle-sessions/internal/x11"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := newRootCmd().Execute(); err != nil {
		// Logger may not be set up yet; use a temporary stderr logger.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("pass failed",
			slog.String("error", err.Error()),
		)
		return 1
	}
	return 0
}

// passFlags are the command-line overrides. They set but never unset the
// corresponding configuration values.
type passFlags struct {
	dryRun     bool
	verbose    bool
	configFile string
}

func newRootCmd() *cobra.Command {
	flags := &passFlags{}

	cmd := &cobra.Command{
		Use:   "stop-idle-sessions",
		Short: "Stop idle systemd-logind sessions",
		Long: "stop-idle-sessions terminates interactive logind sessions idle beyond a " +
			"threshold, to prevent interactive access from unattended terminals. E.g., " +
			"a laptop left unlocked in a coffee shop, with an SSH session into an " +
			"internal network resource.",
		Version: appversion.Full("stop-idle-sessions"),
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPass(flags, cmd.Flags().Changed("config-file"))
		},
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "n", false,
		"don't take any actions, just log what would have happened")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false,
		"increase verbosity to incorporate debug logs")
	cmd.Flags().StringVarP(&flags.configFile, "config-file", "c", config.DefaultConfigFile,
		"override the location of the INI configuration file")

	return cmd
}

// runPass performs one complete evaluation pass.
func runPass(flags *passFlags, explicitConfig bool) error {
	cfg, err := config.Load(flags.configFile, explicitConfig)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if flags.dryRun {
		cfg.DryRun = true
	}
	if flags.verbose {
		cfg.Verbose = true
	}

	logLevel := new(slog.LevelVar)
	if cfg.Verbose {
		logLevel.Set(slog.LevelDebug)
	}
	logger := newLogger(cfg.DryRun, logLevel)

	logindConn, err := logind.New(logger)
	if err != nil {
		return fmt.Errorf("connect to logind: %w", err)
	}
	defer logindConn.Close()

	socketTable, err := sockets.New(logger)
	if err != nil {
		return fmt.Errorf("open socket table: %w", err)
	}

	processes, err := ps.New(logger)
	if err != nil {
		return fmt.Errorf("open process table: %w", err)
	}

	builder := sessions.NewBuilder(sessions.Sources{
		Sessions:  logindConn,
		Sockets:   socketTable,
		Processes: processes,
		Users:     users.NewDirectory(),
		Terminals: tty.NewProbe(),
		Displays:  x11.NewProbe(logger),
	}, logger)

	graph, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build session graph: %w", err)
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	enforcer := sessions.NewEnforcer(logindConn, sessions.EnforcerConfig{
		Timeout:       time.Duration(cfg.Timeout) * time.Minute,
		DryRun:        cfg.DryRun,
		ExcludedUsers: cfg.ExcludedUserList(),
		SyncTTYAtime:  cfg.SyncTTYAtime,
	}, logger, sessions.WithEnforcerMetrics(collector))

	enforcer.Run(graph, time.Now())

	if cfg.MetricsTextfile != "" {
		collector.LastRun.SetToCurrentTime()
		if err := collector.WriteTextfile(cfg.MetricsTextfile); err != nil {
			// The pass itself succeeded; losing one textfile sample is
			// not worth a non-zero exit.
			logger.Warn("failed to write metrics textfile",
				slog.String("path", cfg.MetricsTextfile),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// newLogger selects the log sink: the systemd journal when running
// non-interactively under the timer unit, plain text on stderr during
// dry runs or when no journal is present.
func newLogger(dryRun bool, level *slog.LevelVar) *slog.Logger {
	if !dryRun && journallog.Available() {
		return slog.New(journallog.NewHandler(level))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
