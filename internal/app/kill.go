package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"ports/internal/model"
	"ports/internal/resolver"
)

// DefaultKillTimeout is how long Kill waits for a signalled process to exit.
const DefaultKillTimeout = 5 * time.Second

var (
	sendSignal   = signalProcess
	processAlive = isAlive
	pollInterval = 100 * time.Millisecond
)

// KillParams configures kill command semantics.
type KillParams struct {
	Target string
	// PID kills exactly this process when set; Target is then ignored.
	PID uint32
	// Name is what the caller saw running as PID. When set, a pid now
	// running something else is left alone.
	Name     string
	AllowAll bool
	// Force sends SIGKILL instead of SIGTERM.
	Force   bool
	Timeout time.Duration
}

// KillEvent describes one action taken during kill.
type KillEvent struct {
	Kind string
	Proc model.ProcessEntry
	// Note is informational, e.g. that a service manager may restart the process.
	Note string
	Err  error
}

// KillResult aggregates the command outcome.
type KillResult struct {
	Events       []KillEvent
	Message      string
	TotalMatches int
	Successes    int
}

// Kill signals the processes listening on target and waits for them to exit.
func (a *App) Kill(ctx context.Context, params KillParams) (KillResult, error) {
	var result KillResult
	if params.PID != 0 {
		entry, err := a.resolver.Lookup(ctx, params.PID)
		if err != nil {
			result.Message = fmt.Sprintf("No process with pid %d", params.PID)
			return result, nil
		}
		if params.Name != "" && !model.SameProcessName(entry.Name, params.Name) {
			result.Message = fmt.Sprintf("pid %d was reused: it now runs %s, not %s; nothing was signalled",
				params.PID, entry.Name, params.Name)
			return result, nil
		}
		return a.killProcesses(ctx, []model.ProcessEntry{entry}, params)
	}
	if strings.TrimSpace(params.Target) == "" {
		return result, errors.New("provide a port, pid or process name")
	}

	records, err := a.sockets(ctx, model.SocketFilter{})
	if err != nil {
		return result, err
	}
	m, err := a.match(records, resolver.Query{Target: params.Target})
	if errors.Is(err, resolver.ErrNoMatch) {
		result.Message = fmt.Sprintf("No listening socket matches %q", params.Target)
		return result, nil
	}
	if err != nil {
		return result, err
	}

	procs := resolver.Owners(m.Records)
	if len(procs) == 0 {
		return result, fmt.Errorf("%q: %w", params.Target, ErrOwnerHidden)
	}
	if len(procs) > 1 && !params.AllowAll {
		result.TotalMatches = len(procs)
		return result, fmt.Errorf("multiple processes match %q (pids: %s). Use --all to terminate all or narrow the selection", params.Target, joinProcessesSample(procs))
	}
	return a.killProcesses(ctx, procs, params)
}

func (a *App) killProcesses(ctx context.Context, procs []model.ProcessEntry, params KillParams) (KillResult, error) {
	result := KillResult{TotalMatches: len(procs)}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultKillTimeout
	}
	self := uint32(os.Getpid())

	for _, proc := range procs {
		event := KillEvent{Proc: proc, Note: a.managedNote(ctx, proc)}
		if proc.PID == self {
			event.Kind = "kill_failure"
			event.Err = errors.New("refusing to signal this process")
			result.Events = append(result.Events, event)
			continue
		}
		if err := sendSignal(proc.PID, params.Force); err != nil {
			event.Kind = "kill_failure"
			event.Err = err
			result.Events = append(result.Events, event)
			continue
		}
		if !a.waitExit(ctx, proc.PID, timeout) {
			event.Kind = "timeout"
			event.Err = fmt.Errorf("pid %d still running after %s", proc.PID, timeout)
			result.Events = append(result.Events, event)
			continue
		}
		event.Kind = "success"
		result.Events = append(result.Events, event)
		result.Successes++
	}

	switch {
	case result.Successes == result.TotalMatches:
		return result, nil
	case result.Successes == 0:
		return result, errors.New("no processes were killed (see output above)")
	default:
		return result, fmt.Errorf("partially successful: killed %d/%d processes", result.Successes, result.TotalMatches)
	}
}

// managedNote warns when a service manager owns the process.
func (a *App) managedNote(ctx context.Context, proc model.ProcessEntry) string {
	anc, err := a.cache.Get(ctx, proc.PID, proc.Name)
	if err != nil || !anc.Source.IsInitSystem() {
		return ""
	}
	if anc.SupervisorUnit != "" {
		return fmt.Sprintf("%s is managed by %s (%s) and may be restarted", proc.Name, anc.Source, anc.SupervisorUnit)
	}
	return fmt.Sprintf("%s is managed by %s and may be restarted", proc.Name, anc.Source)
}

func (a *App) waitExit(ctx context.Context, pid uint32, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if a.exited(ctx, pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return a.exited(ctx, pid)
		case <-ticker.C:
		}
	}
}

// exited treats an unreaped zombie as gone: it still answers signal 0
// but will never run again.
func (a *App) exited(ctx context.Context, pid uint32) bool {
	if !processAlive(pid) {
		return true
	}
	zombies, ok := a.platform.Zombies()
	if !ok {
		return false
	}
	zombie, err := zombies.Zombie(ctx, pid)
	return err == nil && zombie
}

func joinProcessesSample(procs []model.ProcessEntry) string {
	limit := 5
	ids := make([]string, 0, limit+1)
	for i := 0; i < len(procs) && i < limit; i++ {
		ids = append(ids, fmt.Sprintf("%d", procs[i].PID))
	}
	if len(procs) > limit {
		ids = append(ids, "...")
	}
	return strings.Join(ids, ", ")
}
