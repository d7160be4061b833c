// Package sockets snapshots the kernel TCP socket table out of procfs,
// joining each socket to the processes holding descriptors on it.
package sockets

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/prometheus/procfs"

	"github.com/dantte-lp/stop-idle-sessions/internal/sessions"
)

// TCP states from include/net/tcp_states.h.
const (
	tcpEstablished = 1
	tcpListen      = 10
)

// Table reads /proc/net/tcp and /proc/net/tcp6 and maps socket inodes to
// pids over /proc/<pid>/fd.
type Table struct {
	fs     procfs.FS
	logger *slog.Logger
}

// New creates a Table over the default /proc mount.
func New(logger *slog.Logger) (*Table, error) {
	return NewAt(procfs.DefaultMountPoint, logger)
}

// NewAt creates a Table over an alternate proc mount point.
func NewAt(mountPoint string, logger *slog.Logger) (*Table, error) {
	pfs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", sessions.ErrSocketTable, mountPoint, err)
	}
	return &Table{fs: pfs, logger: logger}, nil
}

// endpoint is one address/port tuple of a connection.
type endpoint struct {
	addr netip.Addr
	port uint16
}

// flow is a connection seen from one direction.
type flow struct {
	src endpoint
	dst endpoint
}

// Snapshot returns the listening ports and established connections, each
// socket annotated with the pids holding it. Both directions of a
// connection appear in procfs when both endpoints are local; the
// snapshot deduplicates them into a single pair carrying the pid sets of
// both sides.
func (t *Table) Snapshot() (sessions.SocketSnapshot, error) {
	lines, err := t.netTCPLines()
	if err != nil {
		return sessions.SocketSnapshot{}, err
	}

	inodePIDs := t.socketHolders()

	snap := sessions.SocketSnapshot{
		ListeningPorts: make(map[uint16]struct{}),
	}

	// First pass: listening ports, plus the pid set of each flow so the
	// reverse direction's endpoint can be annotated.
	flowPIDs := make(map[flow][]int)
	var established []flow
	for _, ln := range lines {
		local := lineEndpoint(ln.LocalAddr, ln.LocalPort)
		rem := lineEndpoint(ln.RemAddr, ln.RemPort)

		switch ln.St {
		case tcpListen:
			snap.ListeningPorts[local.port] = struct{}{}
		case tcpEstablished:
			f := flow{src: local, dst: rem}
			flowPIDs[f] = inodePIDs[ln.Inode]
			established = append(established, f)
		}
	}

	// Second pass: emit each connection once, with the peer pid set
	// taken from the reverse flow when the peer is also local.
	seen := make(map[flow]struct{})
	for _, f := range established {
		reverse := flow{src: f.dst, dst: f.src}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		seen[reverse] = struct{}{}

		snap.Established = append(snap.Established, sessions.ConnPair{
			Local: sessions.Socket{Addr: f.src.addr, Port: f.src.port, PIDs: flowPIDs[f]},
			Peer:  sessions.Socket{Addr: f.dst.addr, Port: f.dst.port, PIDs: flowPIDs[reverse]},
		})
	}

	return snap, nil
}

// netTCPLines reads the IPv4 and IPv6 TCP tables. A missing tcp6 table
// (IPv6 disabled) is not an error.
func (t *Table) netTCPLines() (procfs.NetTCP, error) {
	tcp4, err := t.fs.NetTCP()
	if err != nil {
		return nil, fmt.Errorf("%w: read net/tcp: %w", sessions.ErrSocketTable, err)
	}

	lines := make(procfs.NetTCP, 0, len(tcp4))
	lines = append(lines, tcp4...)

	tcp6, err := t.fs.NetTCP6()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: read net/tcp6: %w", sessions.ErrSocketTable, err)
		}
		return lines, nil
	}
	return append(lines, tcp6...), nil
}

// socketHolders walks every process's descriptor table and returns the
// socket-inode to pid-set mapping. Processes that exit or refuse access
// mid-walk contribute nothing.
func (t *Table) socketHolders() map[uint64][]int {
	holders := make(map[uint64][]int)

	procs, err := t.fs.AllProcs()
	if err != nil {
		t.logger.Debug("could not enumerate processes for socket owners",
			slog.String("error", err.Error()),
		)
		return holders
	}

	for _, proc := range procs {
		targets, err := proc.FileDescriptorTargets()
		if err != nil {
			continue
		}
		for _, target := range targets {
			inode, ok := socketInode(target)
			if !ok {
				continue
			}
			holders[inode] = append(holders[inode], proc.PID)
		}
	}

	return holders
}

// socketInode parses a descriptor link target of the form
// "socket:[12345]".
func socketInode(target string) (uint64, bool) {
	rest, ok := strings.CutPrefix(target, "socket:[")
	if !ok {
		return 0, false
	}
	rest, ok = strings.CutSuffix(rest, "]")
	if !ok {
		return 0, false
	}
	inode, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return inode, true
}

func lineEndpoint(ip net.IP, port uint64) endpoint {
	addr, _ := netip.AddrFromSlice(ip)
	return endpoint{addr: addr.Unmap(), port: uint16(port)}
}
