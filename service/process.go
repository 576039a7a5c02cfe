package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a point-in-time view of a process' resource usage.
type ProcessStats struct {
	PID         int32  `json:"pid"`
	RSSBytes    uint64 `json:"rss_bytes"`
	Threads     int32  `json:"threads"`
	Connections int    `json:"connections"`
}

// Processes is the OS process table.
type Processes struct{}

// List returns the names of all running processes. Processes that exit
// while being listed are skipped.
func (Processes) List(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Kill terminates the first process matching name.
func (ps Processes) Kill(ctx context.Context, name string) error {
	p, err := ps.find(ctx, name)
	if err != nil {
		return err
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill %s (pid %d): %w", name, p.Pid, err)
	}
	return nil
}

// Stats collects what it can about the first process matching name.
// Individual counters that cannot be read are left zero.
func (ps Processes) Stats(ctx context.Context, name string) (ProcessStats, error) {
	p, err := ps.find(ctx, name)
	if err != nil {
		return ProcessStats{}, err
	}
	st := ProcessStats{PID: p.Pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		st.Threads = n
	}
	if conns, err := p.ConnectionsWithContext(ctx); err == nil {
		st.Connections = len(conns)
	}
	return st, nil
}

func (Processes) find(ctx context.Context, name string) (*process.Process, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	for _, p := range procs {
		pn, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if MatchName(pn, name) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, name)
}

// MatchName compares process names case-insensitively, ignoring an ".exe"
// suffix on either side.
func MatchName(have, want string) bool {
	if want == "" {
		return false
	}
	trim := func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimSuffix(s, ".exe")
	}
	return trim(have) == trim(want)
}
