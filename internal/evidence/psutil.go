package evidence

import (
	"context"
	"errors"
	"os"
	"slices"

	"github.com/shirou/gopsutil/v3/process"

	"ports/internal/model"
)

// Psutil collects what gopsutil can offer on platforms without procfs.
// Cgroups and init labels are never available here.
type Psutil struct{}

func (Psutil) Collect(ctx context.Context, pid uint32) model.Evidence {
	ev := model.Evidence{Gaps: []string{GapCgroup, GapInit}}
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		ev.Gaps = append(ev.Gaps, GapProcess)
		return ev
	}

	if status, err := proc.StatusWithContext(ctx); err == nil {
		if slices.Contains(status, process.Zombie) {
			ev.Warnings = append(ev.Warnings, model.WarningZombie)
		}
	} else {
		ev.Gaps = append(ev.Gaps, GapState)
	}

	if exe, err := proc.ExeWithContext(ctx); err == nil && exe != "" {
		if _, err := os.Stat(exe); errors.Is(err, os.ErrNotExist) {
			ev.Warnings = append(ev.Warnings, model.WarningDeletedBinary)
		}
	} else {
		ev.Gaps = append(ev.Gaps, GapExe)
	}

	if cwd, err := proc.CwdWithContext(ctx); err == nil {
		ev.Repo = FindRepo(cwd)
	} else {
		ev.Gaps = append(ev.Gaps, GapCwd)
	}
	return ev
}
