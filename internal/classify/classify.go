// Package classify decides who launched a process from its ancestry chain
// and the evidence collected for it. Rules run in order; the first match wins.
package classify

import (
	"path"
	"strings"

	"ports/internal/model"
)

// Rule is one tier of the classifier.
type Rule struct {
	Name  string
	Match func(chain []model.Ancestor, ev model.Evidence) (model.SourceCategory, bool)
}

// Rules is the classifier in priority order. Metadata-backed tiers come
// before name heuristics; cron is checked before shell so a cron job's
// intermediate "sh -c" cannot mask it.
var Rules = []Rule{
	{Name: "container", Match: matchContainer},
	{Name: "init", Match: matchInitSystem},
	{Name: "supervisor", Match: matchSupervisor},
	{Name: "multiplexer", Match: matchMultiplexer},
	{Name: "cron", Match: matchCron},
	{Name: "shell", Match: matchShell},
}

// Classify returns the first matching category, or SourceUnknown.
// chain is ordered target first.
func Classify(chain []model.Ancestor, ev model.Evidence) model.SourceCategory {
	for _, rule := range Rules {
		if src, ok := rule.Match(chain, ev); ok {
			return src
		}
	}
	return model.SourceUnknown
}

// Unit names the init-system job behind src, if the evidence carries one.
func Unit(src model.SourceCategory, ev model.Evidence) string {
	switch src {
	case model.SourceSystemd:
		return ServiceUnit(ev.Cgroups)
	case model.SourceLaunchd:
		return ev.InitLabel
	default:
		return ""
	}
}

var containerMarkers = []string{
	"/docker/", "/docker-", "/containerd/", "/kubepods", "/podman-", "/libpod-", "/lxc/",
}

// Runtime helper processes, used only when cgroups are unreadable.
var containerHelpers = []string{"containerd-shim", "conmon", "docker-init"}

func matchContainer(chain []model.Ancestor, ev model.Evidence) (model.SourceCategory, bool) {
	if ev.Cgroups != nil {
		for _, cg := range ev.Cgroups {
			for _, marker := range containerMarkers {
				if strings.Contains(cg, marker) {
					return model.SourceDocker, true
				}
			}
		}
		return model.SourceUnknown, false
	}
	for _, a := range chain {
		name := strings.ToLower(a.Name)
		for _, helper := range containerHelpers {
			if strings.HasPrefix(name, helper) {
				return model.SourceDocker, true
			}
		}
	}
	return model.SourceUnknown, false
}

// ServiceUnit returns the innermost cgroup path element when it is a
// systemd service, e.g. "nginx.service".
func ServiceUnit(cgroups []string) string {
	for _, cg := range cgroups {
		unit := path.Base(strings.TrimSpace(cg))
		if strings.HasSuffix(unit, ".service") {
			return unit
		}
	}
	return ""
}

func matchInitSystem(chain []model.Ancestor, ev model.Evidence) (model.SourceCategory, bool) {
	if ServiceUnit(ev.Cgroups) != "" {
		return model.SourceSystemd, true
	}
	if ev.InitLabel == "" || ev.InitSystem == model.SourceUnknown || len(chain) == 0 {
		return model.SourceUnknown, false
	}
	if chain[len(chain)-1].PID == 1 {
		return ev.InitSystem, true
	}
	return model.SourceUnknown, false
}

var supervisors = []struct {
	name string
	src  model.SourceCategory
}{
	{"pm2", model.SourcePM2},
	{"supervisord", model.SourceSupervisord},
	{"supervisor", model.SourceSupervisord},
	{"gunicorn", model.SourceGunicorn},
	{"runsvdir", model.SourceRunit},
	{"runsv", model.SourceRunit},
	{"s6-svscan", model.SourceS6},
	{"s6-supervise", model.SourceS6},
}

// matchSupervisor scans from the root down so the outermost supervisor wins.
func matchSupervisor(chain []model.Ancestor, _ model.Evidence) (model.SourceCategory, bool) {
	for i := len(chain) - 1; i >= 0; i-- {
		name := strings.ToLower(chain[i].Name)
		for _, s := range supervisors {
			if name == s.name {
				return s.src, true
			}
		}
		// PM2's daemon retitles itself "PM2 v5.3.0: God Daemon (...)".
		if strings.HasPrefix(name, "pm2 ") {
			return model.SourcePM2, true
		}
	}
	return model.SourceUnknown, false
}

func matchMultiplexer(chain []model.Ancestor, _ model.Evidence) (model.SourceCategory, bool) {
	for i := len(chain) - 1; i >= 0; i-- {
		name := strings.ToLower(chain[i].Name)
		switch {
		case strings.HasPrefix(name, "tmux"):
			return model.SourceTmux, true
		case strings.HasPrefix(name, "screen"):
			return model.SourceScreen, true
		case name == "nohup":
			return model.SourceNohup, true
		}
	}
	return model.SourceUnknown, false
}

func matchCron(chain []model.Ancestor, _ model.Evidence) (model.SourceCategory, bool) {
	for i := len(chain) - 1; i >= 0; i-- {
		switch strings.ToLower(chain[i].Name) {
		case "cron", "crond", "anacron":
			return model.SourceCron, true
		}
	}
	return model.SourceUnknown, false
}

var shells = map[string]struct{}{
	"bash": {}, "sh": {}, "zsh": {}, "fish": {}, "tcsh": {}, "dash": {}, "ksh": {}, "csh": {},
}

// matchShell looks only at the direct parent. A shell parented by init is
// a service wrapper, not an interactive session.
func matchShell(chain []model.Ancestor, _ model.Evidence) (model.SourceCategory, bool) {
	if len(chain) < 2 {
		return model.SourceUnknown, false
	}
	parent := chain[1]
	name := strings.TrimPrefix(strings.ToLower(parent.Name), "-") // login shells show as "-zsh"
	if _, ok := shells[name]; !ok {
		return model.SourceUnknown, false
	}
	if parent.PPID == 1 {
		return model.SourceUnknown, false
	}
	return model.SourceShell, true
}
