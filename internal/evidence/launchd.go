package evidence

import (
	"context"
	"strconv"
	"strings"

	"ports/internal/model"
	"ports/internal/sysexec"
)

// Launchd collects evidence on macOS through launchctl, ps and lsof.
// launchctl procinfo needs root for other users' pids; that is a gap, not a failure.
type Launchd struct {
	Run sysexec.Runner
}

func NewLaunchd() *Launchd {
	return &Launchd{Run: sysexec.Exec}
}

func (c *Launchd) Collect(ctx context.Context, pid uint32) model.Evidence {
	ev := model.Evidence{InitSystem: model.SourceLaunchd}
	p := strconv.FormatUint(uint64(pid), 10)

	if out, err := c.Run(ctx, "launchctl", "procinfo", p); err == nil {
		ev.InitLabel = ParseLaunchctlLabel(out)
	}
	if ev.InitLabel == "" {
		ev.Gaps = append(ev.Gaps, GapInit)
	}

	if out, err := c.Run(ctx, "ps", "-o", "state=", "-p", p); err == nil {
		if strings.HasPrefix(strings.TrimSpace(string(out)), "Z") {
			ev.Warnings = append(ev.Warnings, model.WarningZombie)
		}
	} else {
		ev.Gaps = append(ev.Gaps, GapState)
	}

	if out, err := c.Run(ctx, "lsof", "-a", "-p", p, "-d", "cwd", "-Fn"); err == nil {
		if cwd := parseLsofName(out); cwd != "" {
			ev.Repo = FindRepo(cwd)
		}
	} else {
		ev.Gaps = append(ev.Gaps, GapCwd)
	}
	return ev
}

// ParseLaunchctlLabel extracts the job label from `launchctl procinfo`.
func ParseLaunchctlLabel(out []byte) string {
	for _, line := range sysexec.Lines(out) {
		if label, ok := strings.CutPrefix(line, "label = "); ok {
			return strings.TrimSpace(label)
		}
	}
	return ""
}

func parseLsofName(out []byte) string {
	for _, line := range sysexec.Lines(out) {
		if name, ok := strings.CutPrefix(line, "n"); ok {
			return name
		}
	}
	return ""
}
