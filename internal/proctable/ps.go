package proctable

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ports/internal/model"
	"ports/internal/sysexec"
)

// DefaultSnapshotTTL bounds how long one bulk ps snapshot is reused.
const DefaultSnapshotTTL = 5 * time.Second

// ErrNoSuchProcess is returned when a pid is absent from the table.
var ErrNoSuchProcess = errors.New("no such process")

// PsTable serves lookups from one bulk `ps -A` snapshot instead of a
// subprocess per hop. Concurrent refreshes collapse into one ps call.
type PsTable struct {
	Run sysexec.Runner
	TTL time.Duration

	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	table   map[uint32]model.ProcessEntry
	takenAt time.Time
}

// NewPsTable returns a table refreshed at most once per ttl.
func NewPsTable(ttl time.Duration) *PsTable {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &PsTable{Run: sysexec.Exec, TTL: ttl, now: time.Now}
}

// Prepare takes a fresh snapshot if the current one expired. Batch callers
// invoke it once before fanning out.
func (t *PsTable) Prepare(ctx context.Context) error {
	_, err := t.snapshot(ctx)
	return err
}

func (t *PsTable) snapshot(ctx context.Context) (map[uint32]model.ProcessEntry, error) {
	t.mu.Lock()
	if t.table != nil && t.now().Sub(t.takenAt) < t.TTL {
		table := t.table
		t.mu.Unlock()
		return table, nil
	}
	t.mu.Unlock()

	v, err, _ := t.group.Do("ps", func() (any, error) {
		out, err := t.Run(ctx, "ps", "-A", "-o", "pid=,ppid=,comm=")
		if err != nil {
			return nil, fmt.Errorf("process table: %w", err)
		}
		table := ParsePs(out)
		t.mu.Lock()
		t.table = table
		t.takenAt = t.now()
		t.mu.Unlock()
		return table, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[uint32]model.ProcessEntry), nil
}

// Lookup answers from the snapshot. A pid born after the snapshot gets a
// single targeted ps call.
func (t *PsTable) Lookup(ctx context.Context, pid uint32) (model.ProcessEntry, error) {
	table, err := t.snapshot(ctx)
	if err == nil {
		if entry, ok := table[pid]; ok {
			return entry, nil
		}
	}
	out, err := t.Run(ctx, "ps", "-o", "pid=,ppid=,comm=", "-p", strconv.FormatUint(uint64(pid), 10))
	if err != nil {
		return model.ProcessEntry{}, fmt.Errorf("process %d: %w", pid, err)
	}
	entry, ok := ParsePs(out)[pid]
	if !ok {
		return model.ProcessEntry{}, fmt.Errorf("process %d: %w", pid, ErrNoSuchProcess)
	}
	return entry, nil
}

// Command returns the full command line of pid.
func (t *PsTable) Command(ctx context.Context, pid uint32) (string, error) {
	out, err := t.Run(ctx, "ps", "-o", "command=", "-p", strconv.FormatUint(uint64(pid), 10))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Zombie asks ps for the live state of pid; the snapshot may be stale.
func (t *PsTable) Zombie(ctx context.Context, pid uint32) (bool, error) {
	out, err := t.Run(ctx, "ps", "-o", "state=", "-p", strconv.FormatUint(uint64(pid), 10))
	if err != nil {
		return false, fmt.Errorf("process %d state: %w", pid, err)
	}
	return strings.HasPrefix(strings.TrimSpace(string(out)), "Z"), nil
}

// ParsePs reads `ps -o pid=,ppid=,comm=` output. comm may be a full path
// with spaces; only its base name is kept. Unparsable lines are dropped.
func ParsePs(out []byte) map[uint32]model.ProcessEntry {
	table := make(map[uint32]model.ProcessEntry)
	for _, line := range sysexec.Lines(out) {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.ParseUint(fields[0], 10, 32)
		if err != nil {
			continue
		}
		ppid, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			continue
		}
		comm := strings.Join(fields[2:], " ")
		table[uint32(pid)] = model.ProcessEntry{
			PID:  uint32(pid),
			PPID: uint32(ppid),
			Name: filepath.Base(comm),
		}
	}
	return table
}
