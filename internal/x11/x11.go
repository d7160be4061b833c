// Package x11 queries the X11 Screen Saver extension for display idle
// times.
package x11

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"

	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// Probe dials X displays and reads the screen-saver idle counter.
type Probe struct {
	logger *slog.Logger
}

// NewProbe creates a Probe.
func NewProbe(logger *slog.Logger) *Probe {
	return &Probe{logger: logger}
}

// IdleTime connects to the display, authenticating with the given
// XAUTHORITY file, and returns the milliseconds-since-user-input counter
// of the Screen Saver extension as a duration. The connection is scoped
// to the call.
func (p *Probe) IdleTime(display, xauthority string) (time.Duration, error) {
	restore, err := pinXauthority(xauthority)
	if err != nil {
		return 0, fmt.Errorf("%w: display %s: %w", sessions.ErrDisplayProbe, display, err)
	}
	defer restore()

	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return 0, fmt.Errorf("%w: connect %s: %w", sessions.ErrDisplayProbe, display, err)
	}
	defer conn.Close()

	if err := screensaver.Init(conn); err != nil {
		return 0, fmt.Errorf("%w: screensaver extension on %s: %w", sessions.ErrDisplayProbe, display, err)
	}

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	info, err := screensaver.QueryInfo(conn, xproto.Drawable(root)).Reply()
	if err != nil {
		return 0, fmt.Errorf("%w: query %s: %w", sessions.ErrDisplayProbe, display, err)
	}

	idle := time.Duration(info.MsSinceUserInput) * time.Millisecond
	p.logger.Debug("display idle queried",
		slog.String("display", display),
		slog.Duration("idle", idle),
	)
	return idle, nil
}

// pinXauthority points the process environment at the session's
// authority file for the duration of one dial; the X client library
// reads XAUTHORITY from the environment.
func pinXauthority(xauthority string) (func(), error) {
	previous, had := os.LookupEnv("XAUTHORITY")
	if err := os.Setenv("XAUTHORITY", xauthority); err != nil {
		return nil, err
	}
	return func() {
		if had {
			os.Setenv("XAUTHORITY", previous)
			return
		}
		os.Unsetenv("XAUTHORITY")
	}, nil
}
