package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"ports/internal/model"
)

// ErrNoMatch means the query matched nothing. It is distinct from read
// failures so callers can tell "nothing there" from "could not look".
var ErrNoMatch = errors.New("no matching process")

const maxTargetLen = 256

// MatchKind says how a target was interpreted.
type MatchKind string

const (
	MatchAll  MatchKind = "all"
	MatchPort MatchKind = "port"
	MatchPID  MatchKind = "pid"
	MatchName MatchKind = "name"
)

// Query narrows records to a user-supplied target.
type Query struct {
	Target string
	// Regex treats Target as a regular expression over process names.
	Regex bool
	// PreferPID resolves numeric targets as a pid before trying a port.
	PreferPID bool
}

// Match is the outcome of Filter.
type Match struct {
	Records []model.SocketRecord
	Kind    MatchKind
	// Ambiguous is set when a numeric target matched both a port and a pid;
	// Kind tells which interpretation won.
	Ambiguous bool
}

// Filter applies q to records. Numeric targets try port then pid (or
// the reverse with PreferPID); anything else is a case-insensitive
// substring of the process name.
func Filter(records []model.SocketRecord, q Query) (Match, error) {
	target, err := normalizeTarget(q.Target)
	if err != nil {
		return Match{}, err
	}
	if target == "" {
		return Match{Records: records, Kind: MatchAll}, nil
	}

	if q.Regex {
		re, err := regexp.Compile(target)
		if err != nil {
			return Match{}, fmt.Errorf("invalid regex %q: %w", target, err)
		}
		return nonEmpty(Match{Kind: MatchName, Records: keep(records, func(r model.SocketRecord) bool {
			return re.MatchString(r.ProcessName)
		})}, target)
	}

	if n, err := strconv.ParseUint(target, 10, 32); err == nil {
		var byPort []model.SocketRecord
		if n <= 65535 {
			byPort = keep(records, func(r model.SocketRecord) bool { return uint64(r.Port) == n })
		}
		byPID := keep(records, func(r model.SocketRecord) bool { return uint64(r.PID) == n })

		first := Match{Kind: MatchPort, Records: byPort}
		second := Match{Kind: MatchPID, Records: byPID}
		if q.PreferPID {
			first, second = second, first
		}
		if len(first.Records) > 0 {
			first.Ambiguous = len(second.Records) > 0
			return first, nil
		}
		return nonEmpty(second, target)
	}

	needle := strings.ToLower(target)
	return nonEmpty(Match{Kind: MatchName, Records: keep(records, func(r model.SocketRecord) bool {
		return strings.Contains(strings.ToLower(r.ProcessName), needle)
	})}, target)
}

// ParsePID reports whether target is a plain pid.
func ParsePID(target string) (uint32, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(target), 10, 32)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint32(n), true
}

func nonEmpty(m Match, target string) (Match, error) {
	if len(m.Records) == 0 {
		return m, fmt.Errorf("%q: %w", target, ErrNoMatch)
	}
	return m, nil
}

func keep(records []model.SocketRecord, pred func(model.SocketRecord) bool) []model.SocketRecord {
	var out []model.SocketRecord
	for _, r := range records {
		if pred(r) {
			out = append(out, r)
		}
	}
	return out
}

func normalizeTarget(raw string) (string, error) {
	target := strings.TrimSpace(raw)
	if len(target) > maxTargetLen {
		return "", fmt.Errorf("target is too long (max %d characters)", maxTargetLen)
	}
	for _, r := range target {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("target %q contains control character %q", target, r)
		}
	}
	return target, nil
}

// SortField orders records for display.
type SortField string

const (
	SortNone SortField = ""
	SortPort SortField = "port"
	SortPID  SortField = "pid"
	SortName SortField = "name"
)

// ParseSortField accepts port, pid or name; empty keeps table order.
func ParseSortField(raw string) (SortField, error) {
	switch f := SortField(strings.ToLower(strings.TrimSpace(raw))); f {
	case SortNone, SortPort, SortPID, SortName:
		return f, nil
	default:
		return SortNone, fmt.Errorf("unknown sort field %q (want port, pid or name)", raw)
	}
}

// Sort orders records in place; ties keep their table order.
func Sort(records []model.SocketRecord, field SortField) {
	switch field {
	case SortPort:
		sort.SliceStable(records, func(i, j int) bool { return records[i].Port < records[j].Port })
	case SortPID:
		sort.SliceStable(records, func(i, j int) bool { return records[i].PID < records[j].PID })
	case SortName:
		sort.SliceStable(records, func(i, j int) bool { return records[i].ProcessName < records[j].ProcessName })
	}
}

// Owners returns one target per distinct attributed pid, in first-seen order.
func Owners(records []model.SocketRecord) []model.ProcessEntry {
	seen := make(map[uint32]struct{})
	var out []model.ProcessEntry
	for _, r := range records {
		if r.PID == 0 {
			continue
		}
		if _, ok := seen[r.PID]; ok {
			continue
		}
		seen[r.PID] = struct{}{}
		out = append(out, model.ProcessEntry{PID: r.PID, Name: r.ProcessName})
	}
	return out
}
