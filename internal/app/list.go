package app

import (
	"context"
	"errors"

	"ports/internal/ancestry"
	"ports/internal/model"
	"ports/internal/resolver"
)

// ListParams selects and orders sockets.
type ListParams struct {
	Query  resolver.Query
	Filter model.SocketFilter
	Sort   resolver.SortField
	// WithAncestry fills ListResult.Ancestry for every owning pid.
	WithAncestry bool
}

// ListResult keeps sockets and ancestries apart; they are joined by pid
// at render time.
type ListResult struct {
	Records  []model.SocketRecord
	Ancestry map[uint32]model.ProcessAncestry
	Kind     resolver.MatchKind
}

// List returns the sockets matching params. resolver.ErrNoMatch is
// returned when a query was given and nothing matched.
func (a *App) List(ctx context.Context, params ListParams) (ListResult, error) {
	var result ListResult

	records, err := a.sockets(ctx, params.Filter)
	if err != nil {
		return result, err
	}
	m, err := a.match(records, params.Query)
	if err != nil {
		return result, err
	}
	resolver.Sort(m.Records, params.Sort)
	result.Records = m.Records
	result.Kind = m.Kind

	if !params.WithAncestry {
		return result, nil
	}
	owners := resolver.Owners(m.Records)
	targets := make([]ancestry.Target, 0, len(owners))
	for _, o := range owners {
		targets = append(targets, ancestry.Target{PID: o.PID, Name: o.Name})
	}
	result.Ancestry, err = a.cache.GetBatch(ctx, targets)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return result, err
		}
		a.log.Warn("ancestry incomplete", "error", err)
	}
	return result, nil
}
