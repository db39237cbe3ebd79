package ancestry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"ports/internal/classify"
	"ports/internal/logging"
	"ports/internal/metrics"
	"ports/internal/model"
)

// TTL is how long a computed ancestry stays valid for the same pid and name.
const TTL = 10 * time.Second

const (
	defaultConcurrency  = 8
	defaultBuildTimeout = 5 * time.Second
)

// ErrProcessNotFound is returned when the pid vanished before its chain
// could be read. Nothing is cached in that case.
var ErrProcessNotFound = errors.New("process not found")

// Collector gathers evidence about one pid.
type Collector interface {
	Collect(ctx context.Context, pid uint32) model.Evidence
}

// Target identifies a process by pid and the name it was observed under.
// The name guards against pid reuse.
type Target struct {
	PID  uint32
	Name string
}

type entry struct {
	ancestry     model.ProcessAncestry
	observedName string
	insertedAt   time.Time
}

// Cache memoizes ancestry per pid. The mutex guards only map access;
// walks and evidence collection run outside it, and a computation that
// times out never writes.
type Cache struct {
	procs        Lookup
	evidence     Collector
	metrics      *metrics.Metrics
	log          *slog.Logger
	now          func() time.Time
	limit        int
	buildTimeout time.Duration
	group        singleflight.Group
	builds       atomic.Int64

	mu    sync.Mutex
	byPID map[uint32]entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithConcurrency bounds how many misses a batch computes at once.
func WithConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithBuildTimeout bounds one shared ancestry computation.
func WithBuildTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.buildTimeout = d
		}
	}
}

// New builds a cache over a process lookup and an evidence collector.
func New(procs Lookup, evidence Collector, opts ...Option) *Cache {
	c := &Cache{
		procs:    procs,
		evidence: evidence,
		log:      logging.WithComponent("ancestry"),
		now:      time.Now,
		limit:        defaultConcurrency,
		buildTimeout: defaultBuildTimeout,
		byPID:        make(map[uint32]entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Builds reports how many ancestries were computed rather than served from cache.
func (c *Cache) Builds() int64 {
	return c.builds.Load()
}

// Get returns the ancestry of pid, which the caller observed as name.
func (c *Cache) Get(ctx context.Context, pid uint32, name string) (model.ProcessAncestry, error) {
	if a, ok := c.lookup(pid, name); ok {
		return a, nil
	}
	return c.compute(ctx, Target{PID: pid, Name: name})
}

// GetBatch resolves many targets. Misses are computed concurrently; a
// process that vanished is left out of the result. A cancelled ctx
// returns what finished so far together with the context error.
func (c *Cache) GetBatch(ctx context.Context, targets []Target) (map[uint32]model.ProcessAncestry, error) {
	out := make(map[uint32]model.ProcessAncestry, len(targets))
	var missing []Target
	seen := make(map[uint32]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.PID]; dup {
			continue
		}
		seen[t.PID] = struct{}{}
		if a, ok := c.lookup(t.PID, t.Name); ok {
			out[t.PID] = a
			continue
		}
		missing = append(missing, t)
	}
	if len(missing) == 0 {
		return out, nil
	}

	if p, ok := c.procs.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			c.log.Debug("bulk process snapshot failed, falling back to per-hop lookups", "error", err)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for _, t := range missing {
		t := t
		g.Go(func() error {
			a, err := c.compute(gctx, t)
			if errors.Is(err, ErrProcessNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			out[t.PID] = a
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return out, err
}

// lookup serves a valid entry and evicts a stale or recycled one.
func (c *Cache) lookup(pid uint32, name string) (model.ProcessAncestry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byPID[pid]
	switch {
	case !ok:
		c.metrics.CacheMiss("absent")
		return model.ProcessAncestry{}, false
	case e.observedName != name:
		delete(c.byPID, pid)
		c.metrics.CacheMiss("renamed")
		return model.ProcessAncestry{}, false
	case c.now().Sub(e.insertedAt) >= TTL:
		delete(c.byPID, pid)
		c.metrics.CacheMiss("expired")
		return model.ProcessAncestry{}, false
	}
	c.metrics.CacheHit()
	return e.ancestry.Clone(), true
}

func (c *Cache) store(t Target, a model.ProcessAncestry) {
	c.mu.Lock()
	c.byPID[t.PID] = entry{ancestry: a, observedName: t.Name, insertedAt: c.now()}
	c.mu.Unlock()
}

// compute collapses concurrent misses for the same pid and name into one
// build. The build belongs to no single caller: it runs detached from ctx
// under buildTimeout, and each caller stops waiting when its own ctx ends.
func (c *Cache) compute(ctx context.Context, t Target) (model.ProcessAncestry, error) {
	if err := ctx.Err(); err != nil {
		return model.ProcessAncestry{}, err
	}
	key := strconv.FormatUint(uint64(t.PID), 10) + "\x00" + t.Name
	ch := c.group.DoChan(key, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.buildTimeout)
		defer cancel()
		return c.build(bctx, t)
	})
	select {
	case <-ctx.Done():
		return model.ProcessAncestry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.ProcessAncestry{}, res.Err
		}
		return res.Val.(model.ProcessAncestry).Clone(), nil
	}
}

func (c *Cache) build(ctx context.Context, t Target) (model.ProcessAncestry, error) {
	c.builds.Add(1)
	started := time.Now()

	chain, err := Walk(ctx, c.procs, t.PID)
	if err != nil {
		return model.ProcessAncestry{}, err
	}
	if len(chain) == 0 {
		return model.ProcessAncestry{}, fmt.Errorf("pid %d: %w", t.PID, ErrProcessNotFound)
	}
	// The pid was recycled since the caller saw it.
	if t.Name != "" && !model.SameProcessName(chain[0].Name, t.Name) {
		return model.ProcessAncestry{}, fmt.Errorf("pid %d now runs %q, not %q: %w",
			t.PID, chain[0].Name, t.Name, ErrProcessNotFound)
	}

	ev := c.evidence.Collect(ctx, t.PID)
	if err := ctx.Err(); err != nil {
		return model.ProcessAncestry{}, err
	}
	for _, gap := range ev.Gaps {
		c.metrics.EvidenceGap(gap)
	}
	if len(ev.Gaps) > 0 {
		c.log.Debug("evidence unavailable", "pid", t.PID, "collectors", ev.Gaps)
	}

	src := classify.Classify(chain, ev)
	a := model.ProcessAncestry{
		Chain:          chain,
		Source:         src,
		Warnings:       ev.Warnings,
		Repo:           ev.Repo,
		SupervisorUnit: classify.Unit(src, ev),
	}
	c.store(t, a)
	c.metrics.AncestryBuilt(time.Since(started))
	return a, nil
}
