package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceCategory names who is responsible for keeping a process alive.
type SourceCategory uint8

const (
	SourceUnknown SourceCategory = iota
	SourceSystemd
	SourceLaunchd
	SourceDocker
	SourceCron
	SourceShell
	SourcePM2
	SourceSupervisord
	SourceGunicorn
	SourceRunit
	SourceS6
	SourceTmux
	SourceScreen
	SourceNohup
)

var sourceNames = [...]string{
	SourceUnknown:     "unknown",
	SourceSystemd:     "systemd",
	SourceLaunchd:     "launchd",
	SourceDocker:      "docker",
	SourceCron:        "cron",
	SourceShell:       "shell",
	SourcePM2:         "pm2",
	SourceSupervisord: "supervisord",
	SourceGunicorn:    "gunicorn",
	SourceRunit:       "runit",
	SourceS6:          "s6",
	SourceTmux:        "tmux",
	SourceScreen:      "screen",
	SourceNohup:       "nohup",
}

func (s SourceCategory) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return sourceNames[SourceUnknown]
}

// IsInitSystem reports whether the init system itself manages the process,
// which usually means it will be restarted after a kill.
func (s SourceCategory) IsInitSystem() bool {
	return s == SourceSystemd || s == SourceLaunchd
}

// ParseSourceCategory is the inverse of String.
func ParseSourceCategory(raw string) (SourceCategory, error) {
	want := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range sourceNames {
		if name == want {
			return SourceCategory(i), nil
		}
	}
	return SourceUnknown, fmt.Errorf("unknown source category %q", raw)
}

func (s SourceCategory) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SourceCategory) UnmarshalText(b []byte) error {
	v, err := ParseSourceCategory(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// HealthWarning flags a suspicious process state.
type HealthWarning uint8

const (
	WarningDeletedBinary HealthWarning = iota + 1
	WarningZombie
)

func (w HealthWarning) String() string {
	switch w {
	case WarningDeletedBinary:
		return "deleted-binary"
	case WarningZombie:
		return "zombie"
	default:
		return fmt.Sprintf("warning(%d)", uint8(w))
	}
}

func (w HealthWarning) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *HealthWarning) UnmarshalText(b []byte) error {
	switch string(b) {
	case "deleted-binary":
		*w = WarningDeletedBinary
	case "zombie":
		*w = WarningZombie
	default:
		return fmt.Errorf("unknown health warning %q", string(b))
	}
	return nil
}

// Ancestor is one hop of an ancestry chain.
type Ancestor struct {
	PID  uint32 `json:"pid"`
	Name string `json:"name"`
	PPID uint32 `json:"-"`
}

// truncatedNameLen is the shortest name a reader may have cut off:
// lsof keeps 9 characters of the command by default.
const truncatedNameLen = 9

// SameProcessName reports whether two observations of a pid's name can
// belong to the same process. A name of at least truncatedNameLen that
// prefixes the other counts as a truncated copy of it.
func SameProcessName(a, b string) bool {
	if a == b {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= truncatedNameLen && strings.HasPrefix(long, short)
}

// RepoContext locates the version-controlled checkout a process runs from.
type RepoContext struct {
	Root   string `json:"repo_root"`
	Branch string `json:"branch"`
}

// ProcessAncestry answers why a process is running.
// Chain is ordered from the queried process (index 0) up to the root.
type ProcessAncestry struct {
	Chain          []Ancestor      `json:"chain"`
	Source         SourceCategory  `json:"source"`
	Warnings       []HealthWarning `json:"warnings"`
	Repo           *RepoContext    `json:"git,omitempty"`
	SupervisorUnit string          `json:"supervisor_unit,omitempty"`
}

// Target returns the queried process, the first element of the chain.
func (a ProcessAncestry) Target() (Ancestor, bool) {
	if len(a.Chain) == 0 {
		return Ancestor{}, false
	}
	return a.Chain[0], true
}

// Clone returns a deep copy that shares no memory with a.
func (a ProcessAncestry) Clone() ProcessAncestry {
	out := a
	out.Chain = append([]Ancestor(nil), a.Chain...)
	out.Warnings = append([]HealthWarning(nil), a.Warnings...)
	if a.Repo != nil {
		repo := *a.Repo
		out.Repo = &repo
	}
	return out
}

// ChainString renders the chain root first, e.g. "systemd(1) → nginx(200)".
func (a ProcessAncestry) ChainString() string {
	parts := make([]string, 0, len(a.Chain))
	for i := len(a.Chain) - 1; i >= 0; i-- {
		parts = append(parts, fmt.Sprintf("%s(%d)", a.Chain[i].Name, a.Chain[i].PID))
	}
	return strings.Join(parts, " → ")
}

// HasWarning reports whether w was raised.
func (a ProcessAncestry) HasWarning(w HealthWarning) bool {
	for _, have := range a.Warnings {
		if have == w {
			return true
		}
	}
	return false
}

// MarshalJSON keeps warnings as an empty list instead of null.
func (a ProcessAncestry) MarshalJSON() ([]byte, error) {
	type plain ProcessAncestry
	out := plain(a)
	if out.Chain == nil {
		out.Chain = []Ancestor{}
	}
	if out.Warnings == nil {
		out.Warnings = []HealthWarning{}
	}
	return json.Marshal(out)
}

// Evidence is what the platform could learn about one pid beyond its name.
// Every field is optional; a zero value means "nothing known".
type Evidence struct {
	// Cgroups holds control-group paths; nil when they could not be read.
	Cgroups []string
	// InitSystem is the init system that answered InitLabel.
	InitSystem SourceCategory
	// InitLabel is the job label the init system reports for the pid.
	InitLabel string
	Warnings  []HealthWarning
	Repo      *RepoContext
	// Gaps names the collectors that had no data, for diagnostics.
	Gaps []string
}
