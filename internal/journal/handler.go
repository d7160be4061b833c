// Package journal provides a slog.Handler that writes to the systemd
// journal, used when the tool runs from its timer unit rather than an
// interactive shell.
package journal

import (
	"context"
	"log/slog"
	"strings"

	sdjournal "github.com/coreos/go-systemd/v22/journal"
)

// Available reports whether a journal socket is present.
func Available() bool {
	return sdjournal.Enabled()
}

// Handler forwards slog records to the systemd journal. Attribute keys
// become journal fields (uppercased, non-alphanumerics folded to '_');
// group names prefix the field names.
type Handler struct {
	level  slog.Leveler
	prefix string
	fields map[string]string
}

// NewHandler creates a Handler emitting records at or above level.
func NewHandler(level slog.Leveler) *Handler {
	return &Handler{level: level, fields: map[string]string{}}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, record slog.Record) error {
	fields := make(map[string]string, len(h.fields)+record.NumAttrs())
	for name, value := range h.fields {
		fields[name] = value
	}
	record.Attrs(func(attr slog.Attr) bool {
		fields[fieldName(h.prefix, attr.Key)] = attr.Value.String()
		return true
	})

	return sdjournal.Send(record.Message, priority(record.Level), fields)
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	for _, attr := range attrs {
		clone.fields[fieldName(clone.prefix, attr.Key)] = attr.Value.String()
	}
	return clone
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	clone := h.clone()
	clone.prefix = fieldName(clone.prefix, name) + "_"
	return clone
}

func (h *Handler) clone() *Handler {
	fields := make(map[string]string, len(h.fields))
	for name, value := range h.fields {
		fields[name] = value
	}
	return &Handler{level: h.level, prefix: h.prefix, fields: fields}
}

// priority maps slog levels onto journal priorities.
func priority(level slog.Level) sdjournal.Priority {
	switch {
	case level >= slog.LevelError:
		return sdjournal.PriErr
	case level >= slog.LevelWarn:
		return sdjournal.PriWarning
	case level >= slog.LevelInfo:
		return sdjournal.PriInfo
	default:
		return sdjournal.PriDebug
	}
}

// fieldName sanitizes a key into a journal field name: uppercase
// [A-Z0-9_], not starting with a digit or underscore.
func fieldName(prefix, key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(prefix + key) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.TrimLeft(b.String(), "_0123456789")
	if name == "" {
		name = "FIELD"
	}
	return name
}
