package evidence

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/procfs"

	"ports/internal/model"
)

// Collector names reported in Evidence.Gaps.
const (
	GapProcess = "process"
	GapCgroup  = "cgroup"
	GapExe     = "exe"
	GapState   = "state"
	GapCwd     = "cwd"
	GapInit    = "init_label"
)

// ProcFS collects evidence from a procfs mount.
type ProcFS struct {
	fs procfs.FS
}

func NewProcFS(root string) (*ProcFS, error) {
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open procfs %s: %w", root, err)
	}
	return &ProcFS{fs: fs}, nil
}

func (c *ProcFS) Collect(ctx context.Context, pid uint32) model.Evidence {
	var ev model.Evidence
	proc, err := c.fs.Proc(int(pid))
	if err != nil {
		ev.Gaps = append(ev.Gaps, GapProcess)
		return ev
	}

	if groups, err := proc.Cgroups(); err == nil {
		ev.Cgroups = make([]string, 0, len(groups))
		for _, g := range groups {
			ev.Cgroups = append(ev.Cgroups, g.Path)
		}
	} else {
		ev.Gaps = append(ev.Gaps, GapCgroup)
	}

	if exe, err := proc.Executable(); err == nil && exe != "" {
		if strings.HasSuffix(exe, " (deleted)") {
			ev.Warnings = append(ev.Warnings, model.WarningDeletedBinary)
		}
	} else {
		ev.Gaps = append(ev.Gaps, GapExe)
	}

	if stat, err := proc.Stat(); err == nil {
		if stat.State == "Z" {
			ev.Warnings = append(ev.Warnings, model.WarningZombie)
		}
	} else {
		ev.Gaps = append(ev.Gaps, GapState)
	}

	if ctx.Err() != nil {
		return ev
	}
	if cwd, err := proc.Cwd(); err == nil && cwd != "" {
		ev.Repo = FindRepo(cwd)
	} else {
		ev.Gaps = append(ev.Gaps, GapCwd)
	}
	return ev
}
