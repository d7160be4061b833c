// Package ps lists the processes contained in a logind session scope.
package ps

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// defaultCgroupRoots are tried in order when resolving a scope path:
// the v2 unified hierarchy first, then the v1 systemd hierarchy.
var defaultCgroupRoots = []string{
	"/sys/fs/cgroup",
	"/sys/fs/cgroup/systemd",
}

// environKeys are the only environment variables the graph consumes.
var environKeys = map[string]struct{}{
	"DISPLAY":    {},
	"XAUTHORITY": {},
}

// Lister reads scope membership from the cgroup filesystem and process
// details from procfs.
type Lister struct {
	fs          procfs.FS
	cgroupRoots []string
	logger      *slog.Logger
}

// New creates a Lister over the default /proc and cgroup mounts.
func New(logger *slog.Logger) (*Lister, error) {
	return NewAt(procfs.DefaultMountPoint, defaultCgroupRoots, logger)
}

// NewAt creates a Lister over alternate proc and cgroup mounts.
func NewAt(procMount string, cgroupRoots []string, logger *slog.Logger) (*Lister, error) {
	pfs, err := procfs.NewFS(procMount)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", procMount, err)
	}
	return &Lister{fs: pfs, cgroupRoots: cgroupRoots, logger: logger}, nil
}

// InScope returns the processes whose pids are listed in the scope's
// cgroup.procs, with Environ restricted to DISPLAY and XAUTHORITY.
// Processes that exit between enumeration and read are silently omitted.
func (l *Lister) InScope(scopePath string) ([]sessions.Process, error) {
	pids, err := l.scopePIDs(scopePath)
	if err != nil {
		return nil, fmt.Errorf("%w: scope %s: %w", sessions.ErrSessionParse, scopePath, err)
	}

	procs := make([]sessions.Process, 0, len(pids))
	for _, pid := range pids {
		proc, err := l.fs.Proc(pid)
		if err != nil {
			continue
		}

		args, err := proc.CmdLine()
		if err != nil {
			continue
		}

		environ, err := proc.Environ()
		if err != nil {
			// Readable cmdline but unreadable environ happens across
			// uid boundaries; the process still belongs in the graph.
			environ = nil
		}

		procs = append(procs, sessions.Process{
			PID:     pid,
			Cmdline: strings.Join(args, " "),
			Environ: filterEnviron(environ),
		})
	}

	return procs, nil
}

// scopePIDs reads cgroup.procs for the scope from the first hierarchy
// root that carries it.
func (l *Lister) scopePIDs(scopePath string) ([]int, error) {
	var lastErr error

	for _, root := range l.cgroupRoots {
		data, err := os.ReadFile(filepath.Join(root, scopePath, "cgroup.procs"))
		if err != nil {
			lastErr = err
			continue
		}
		return parsePIDs(string(data))
	}

	return nil, fmt.Errorf("read cgroup.procs: %w", lastErr)
}

func parsePIDs(data string) ([]int, error) {
	var pids []int
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("parse pid %q: %w", line, err)
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// filterEnviron keeps only the variables the graph consumes.
func filterEnviron(environ []string) map[string]string {
	out := make(map[string]string, len(environKeys))
	for _, entry := range environ {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, keep := environKeys[name]; keep {
			out[name] = value
		}
	}
	return out
}
