// Package logind talks to systemd-logind over the D-Bus system bus.
package logind

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"

	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// org.freedesktop.login1 bus names, paths, and members.
const (
	busName     = "org.freedesktop.login1"
	managerPath = dbus.ObjectPath("/org/freedesktop/login1")

	managerListSessions     = "org.freedesktop.login1.Manager.ListSessions"
	managerTerminateSession = "org.freedesktop.login1.Manager.TerminateSession"

	sessionIface = "org.freedesktop.login1.Session"

	// noSuchSession is returned when terminating a session that is
	// already gone; treated as success for idempotence.
	noSuchSession = "org.freedesktop.login1.NoSuchSession"
)

// cgroupUserSlice is the slice logind places user session scopes under.
const cgroupUserSlice = "user.slice"

// listedSession mirrors the (susso) tuples returned by ListSessions.
type listedSession struct {
	ID   string
	UID  uint32
	User string
	Seat string
	Path dbus.ObjectPath
}

// Conn is a SessionSource backed by the logind Manager interface.
type Conn struct {
	bus    *dbus.Conn
	logger *slog.Logger
}

// New connects to the D-Bus system bus.
func New(logger *slog.Logger) (*Conn, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("%w: connect system bus: %w", sessions.ErrSessionEnumeration, err)
	}
	return &Conn{bus: bus, logger: logger}, nil
}

// Close releases the bus connection.
func (c *Conn) Close() error {
	return c.bus.Close()
}

// List enumerates all logind sessions with the properties the graph
// builder needs. A session whose properties cannot be read (it may have
// ended mid-enumeration) is logged and omitted.
func (c *Conn) List() ([]sessions.LogindSession, error) {
	var listed []listedSession
	manager := c.bus.Object(busName, managerPath)
	if err := manager.Call(managerListSessions, 0).Store(&listed); err != nil {
		return nil, fmt.Errorf("%w: ListSessions: %w", sessions.ErrSessionEnumeration, err)
	}

	out := make([]sessions.LogindSession, 0, len(listed))
	for _, ls := range listed {
		session, err := c.sessionProperties(ls)
		if err != nil {
			c.logger.Warn("could not read session properties, omitting",
				slog.String("session_id", ls.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, session)
	}

	return out, nil
}

// sessionProperties reads the per-session properties off the session's
// own bus object.
func (c *Conn) sessionProperties(ls listedSession) (sessions.LogindSession, error) {
	obj := c.bus.Object(busName, ls.Path)

	sessionType, err := stringProperty(obj, "Type")
	if err != nil {
		return sessions.LogindSession{}, err
	}

	tty, err := stringProperty(obj, "TTY")
	if err != nil {
		return sessions.LogindSession{}, err
	}

	scope, err := stringProperty(obj, "Scope")
	if err != nil {
		return sessions.LogindSession{}, err
	}

	leader, err := uint32Property(obj, "Leader")
	if err != nil {
		return sessions.LogindSession{}, err
	}

	return sessions.LogindSession{
		ID:        ls.ID,
		UID:       ls.UID,
		Type:      sessionType,
		TTY:       tty,
		Leader:    int(leader),
		Scope:     scope,
		ScopePath: scopeHierarchyPath(ls.UID, scope),
	}, nil
}

// TerminateLeader asks logind to terminate the session. A session that
// is already gone is not an error.
func (c *Conn) TerminateLeader(id string) error {
	manager := c.bus.Object(busName, managerPath)
	err := manager.Call(managerTerminateSession, 0, id).Err
	if err == nil {
		return nil
	}

	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) && dbusErr.Name == noSuchSession {
		return nil
	}
	return fmt.Errorf("terminate session %s: %w", id, err)
}

// scopeHierarchyPath maps a session scope unit to its path below the
// cgroup root: user.slice/user-<uid>.slice/<scope>. Valid for both the
// v2 unified hierarchy and the v1 systemd hierarchy.
func scopeHierarchyPath(uid uint32, scope string) string {
	return fmt.Sprintf("%s/user-%d.slice/%s", cgroupUserSlice, uid, scope)
}

func stringProperty(obj dbus.BusObject, name string) (string, error) {
	variant, err := obj.GetProperty(sessionIface + "." + name)
	if err != nil {
		return "", fmt.Errorf("get property %s: %w", name, err)
	}
	value, ok := variant.Value().(string)
	if !ok {
		return "", fmt.Errorf("property %s: unexpected type %T", name, variant.Value())
	}
	return value, nil
}

func uint32Property(obj dbus.BusObject, name string) (uint32, error) {
	variant, err := obj.GetProperty(sessionIface + "." + name)
	if err != nil {
		return 0, fmt.Errorf("get property %s: %w", name, err)
	}
	value, ok := variant.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("property %s: unexpected type %T", name, variant.Value())
	}
	return value, nil
}
