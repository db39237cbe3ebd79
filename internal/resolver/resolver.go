// Package resolver joins the socket table with the process table and
// narrows the result down to what a user asked about.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ports/internal/logging"
	"ports/internal/metrics"
	"ports/internal/model"
	"ports/internal/netstat"
	"ports/internal/platform"
)

// Resolver produces process-attributed socket records.
type Resolver struct {
	platform platform.Platform
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

func New(p platform.Platform, opts ...Option) *Resolver {
	r := &Resolver{
		platform: p,
		log:      logging.WithComponent("resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sockets reads the socket table and fills in owning pids and names.
// Diagnostics (skipped rows, unreadable owners) come back joined in the
// error next to whatever could be resolved; callers decide whether a
// partial table is good enough.
func (r *Resolver) Sockets(ctx context.Context, filter model.SocketFilter) ([]model.SocketRecord, error) {
	records, readErr := r.platform.Sockets.ReadSockets(ctx, filter)
	errs := []error{readErr}
	r.noteSkippedRows(readErr)
	if err := ctx.Err(); err != nil {
		return records, err
	}

	if owners, ok := r.platform.Owners(); ok && needsOwners(records) {
		byInode, err := owners.SocketOwners(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("socket owners: %w", err))
		}
		for i := range records {
			if records[i].PID != 0 || records[i].Inode == 0 {
				continue
			}
			if pid, ok := byInode[records[i].Inode]; ok {
				records[i].PID = pid
			}
		}
	}

	names := make(map[uint32]string)
	for i := range records {
		rec := &records[i]
		if rec.PID != 0 && rec.ProcessName == "" {
			name, seen := names[rec.PID]
			if !seen {
				if entry, err := r.platform.Processes.Lookup(ctx, rec.PID); err == nil {
					name = entry.Name
				} else {
					r.log.Debug("owner name unavailable", "pid", rec.PID, "error", err)
				}
				names[rec.PID] = name
			}
			rec.ProcessName = name
		}
		r.metrics.SocketRead(string(rec.Protocol), string(rec.State))
	}
	return records, errors.Join(errs...)
}

func needsOwners(records []model.SocketRecord) bool {
	for _, rec := range records {
		if rec.PID == 0 && rec.Inode != 0 {
			return true
		}
	}
	return false
}

func (r *Resolver) noteSkippedRows(err error) {
	rows := netstat.RowErrors(err)
	if len(rows) == 0 {
		return
	}
	perTable := make(map[string]int)
	for _, row := range rows {
		perTable[row.Table]++
	}
	for table, n := range perTable {
		r.metrics.RowsSkipped(table, n)
		r.log.Warn("skipped malformed socket rows", "table", table, "rows", n)
	}
}

// Lookup exposes the process table for targets that own no socket.
func (r *Resolver) Lookup(ctx context.Context, pid uint32) (model.ProcessEntry, error) {
	return r.platform.Processes.Lookup(ctx, pid)
}
