package proctable

import (
	"context"
	"fmt"
	"slices"

	"github.com/shirou/gopsutil/v3/process"

	"ports/internal/model"
)

// Psutil looks processes up through gopsutil, one call per hop.
type Psutil struct{}

func (Psutil) Lookup(ctx context.Context, pid uint32) (model.ProcessEntry, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return model.ProcessEntry{}, fmt.Errorf("process %d: %w", pid, err)
	}
	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return model.ProcessEntry{}, fmt.Errorf("process %d name: %w", pid, err)
	}
	ppid, err := proc.PpidWithContext(ctx)
	if err != nil {
		return model.ProcessEntry{}, fmt.Errorf("process %d ppid: %w", pid, err)
	}
	return model.ProcessEntry{PID: pid, PPID: uint32(ppid), Name: name}, nil
}

func (Psutil) Zombie(ctx context.Context, pid uint32) (bool, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false, fmt.Errorf("process %d: %w", pid, err)
	}
	status, err := proc.StatusWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("process %d status: %w", pid, err)
	}
	return slices.Contains(status, process.Zombie), nil
}

func (Psutil) Command(ctx context.Context, pid uint32) (string, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	return proc.CmdlineWithContext(ctx)
}
