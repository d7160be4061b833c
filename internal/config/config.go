// Package config manages stop-idle-sessions configuration using koanf/v2.
//
// Layer order: built-in defaults, then the INI configuration file, then
// STOP_IDLE_SESSIONS_* environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"gopkg.in/ini.v1"
)

// -------------------------------------------------------------------------
// Configuration Structure
// -------------------------------------------------------------------------

// DefaultConfigFile is the configuration file consulted when no explicit
// path is supplied. Its absence is not an error.
const DefaultConfigFile = "/etc/stop-idle-sessions.conf"

// section is the recognized INI section.
const section = "stop-idle-sessions"

// Config holds the complete stop-idle-sessions configuration.
type Config struct {
	// DryRun logs enforcement decisions without terminating anything.
	DryRun bool `koanf:"dry-run"`

	// Verbose lowers the log level to debug.
	Verbose bool `koanf:"verbose"`

	// ExcludedUsers is the raw excluded-users value: usernames separated
	// by any of ',', ';', ':'. Use ExcludedUserList for the parsed form.
	ExcludedUsers string `koanf:"excluded-users"`

	// Timeout is the idleness threshold in minutes. Must be >= 0.
	Timeout int `koanf:"timeout"`

	// SyncTTYAtime enables raising a terminal's atime to its mtime
	// before evaluation so program output counts as activity for the
	// in-kernel idle check.
	SyncTTYAtime bool `koanf:"sync-tty-atime"`

	// MetricsTextfile is the path the pass counters are written to in
	// Prometheus text exposition format. Empty disables the export.
	MetricsTextfile string `koanf:"metrics-textfile"`
}

// ExcludedUserList returns the parsed excluded-users value.
func (c *Config) ExcludedUserList() []string {
	return SplitExcludedUsers(c.ExcludedUsers)
}

// SplitExcludedUsers splits an excluded-users value on ',', ';' and ':',
// trimming whitespace per element and dropping empties.
func SplitExcludedUsers(raw string) []string {
	var users []string
	for _, field := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ':'
	}) {
		field = strings.TrimSpace(field)
		if field != "" {
			users = append(users, field)
		}
	}
	return users
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout: 15,
	}
}

// defaultsMap is the koanf base layer.
func defaultsMap() map[string]any {
	defaults := DefaultConfig()
	return map[string]any{
		"dry-run":          defaults.DryRun,
		"verbose":          defaults.Verbose,
		"excluded-users":   defaults.ExcludedUsers,
		"timeout":          defaults.Timeout,
		"sync-tty-atime":   defaults.SyncTTYAtime,
		"metrics-textfile": defaults.MetricsTextfile,
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for overrides.
// Variables are named STOP_IDLE_SESSIONS_<key>, e.g.
// STOP_IDLE_SESSIONS_DRY_RUN or STOP_IDLE_SESSIONS_TIMEOUT.
const envPrefix = "STOP_IDLE_SESSIONS_"

// Load reads configuration from the INI file at path, layered between
// the built-in defaults and environment overrides.
//
// When explicit is false (the stock location), a missing file is
// silently skipped; when true (operator-supplied -c path), a missing
// file is an error.
func Load(path string, explicit bool) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	fileMap, err := loadINI(path)
	switch {
	case err == nil:
		if err := k.Load(confmap.Provider(fileMap, "."), nil); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// The stock location is optional.
	default:
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// loadINI parses the [stop-idle-sessions] section into a typed map for
// the confmap provider. INI booleans accept yes/no/on/off/true/false.
func loadINI(path string) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, path)
	if err != nil {
		return nil, err
	}

	sec := file.Section(section)
	m := make(map[string]any, len(sec.Keys()))
	for _, key := range sec.Keys() {
		switch key.Name() {
		case "dry-run", "verbose", "sync-tty-atime":
			value, err := key.Bool()
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", key.Name(), err)
			}
			m[key.Name()] = value
		case "timeout":
			value, err := key.Int()
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", key.Name(), err)
			}
			m[key.Name()] = value
		default:
			m[key.Name()] = key.String()
		}
	}

	return m, nil
}

// envMapper transforms STOP_IDLE_SESSIONS_DRY_RUN=yes into
// ("dry-run", true): strip the prefix, lowercase, '_' to '-', and
// coerce the value to the key's type where one is known.
func envMapper(key, value string) (string, any) {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", "-")

	switch name {
	case "dry-run", "verbose", "sync-tty-atime":
		if b, err := parseBool(value); err == nil {
			return name, b
		}
	case "timeout":
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return name, n
		}
	}
	return name, value
}

// parseBool accepts the INI boolean spellings on top of strconv's.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(value))
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrNegativeTimeout indicates the timeout is below zero minutes.
	ErrNegativeTimeout = errors.New("timeout must be >= 0 minutes")
)

// Validate checks the configuration for logical errors.
func Validate(cfg *Config) error {
	if cfg.Timeout < 0 {
		return ErrNegativeTimeout
	}
	return nil
}
