package app

import (
	"context"
	"errors"
	"fmt"

	"ports/internal/ancestry"
	"ports/internal/model"
	"ports/internal/resolver"
)

// WhyReport explains one process and the sockets it holds.
type WhyReport struct {
	Process  model.ProcessEntry
	Command  string
	Ports    []model.SocketRecord
	Ancestry model.ProcessAncestry
}

// Why explains every process behind target, a port, pid or name. Both
// listening and established sockets are searched; a bare pid that holds
// no socket is still explained.
func (a *App) Why(ctx context.Context, target string) ([]WhyReport, error) {
	records, err := a.sockets(ctx, model.SocketFilter{All: true})
	if err != nil {
		return nil, err
	}

	m, err := a.match(records, resolver.Query{Target: target})
	if errors.Is(err, resolver.ErrNoMatch) {
		pid, ok := resolver.ParsePID(target)
		if !ok {
			return nil, err
		}
		entry, lookupErr := a.resolver.Lookup(ctx, pid)
		if lookupErr != nil {
			return nil, err
		}
		report, buildErr := a.report(ctx, entry, nil)
		if buildErr != nil {
			return nil, err
		}
		return []WhyReport{report}, nil
	}
	if err != nil {
		return nil, err
	}

	owners := resolver.Owners(m.Records)
	if len(owners) == 0 {
		return nil, fmt.Errorf("%q: %w", target, ErrOwnerHidden)
	}

	reports := make([]WhyReport, 0, len(owners))
	for _, owner := range owners {
		var ports []model.SocketRecord
		for _, rec := range m.Records {
			if rec.PID == owner.PID {
				ports = append(ports, rec)
			}
		}
		report, err := a.report(ctx, owner, ports)
		if errors.Is(err, ancestry.ErrProcessNotFound) {
			a.log.Debug("process exited before it could be explained", "pid", owner.PID)
			continue
		}
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("%q: %w", target, resolver.ErrNoMatch)
	}
	return reports, nil
}

func (a *App) report(ctx context.Context, proc model.ProcessEntry, ports []model.SocketRecord) (WhyReport, error) {
	anc, err := a.cache.Get(ctx, proc.PID, proc.Name)
	if err != nil {
		return WhyReport{}, err
	}
	if target, ok := anc.Target(); ok {
		proc.PPID = target.PPID
		if proc.Name == "" {
			proc.Name = target.Name
		}
	}
	report := WhyReport{Process: proc, Ports: ports, Ancestry: anc}
	if cmds, ok := a.platform.Commands(); ok {
		if cmd, err := cmds.Command(ctx, proc.PID); err == nil {
			report.Command = cmd
		} else {
			a.log.Debug("command line unavailable", "pid", proc.PID, "error", err)
		}
	}
	return report, nil
}
