package app

import (
	"context"
	"errors"
	"log/slog"

	"ports/internal/ancestry"
	"ports/internal/config"
	"ports/internal/logging"
	"ports/internal/metrics"
	"ports/internal/model"
	"ports/internal/platform"
	"ports/internal/resolver"
)

// ErrOwnerHidden means sockets matched but none of them could be tied
// to a process, usually because they belong to another user.
var ErrOwnerHidden = errors.New("socket owner is not visible to this user (try running as root)")

// Options configures the top-level controller.
type Options struct {
	Config config.Config
	// Platform overrides OS detection.
	Platform *platform.Platform
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// App exposes high-level operations that the CLI/TUI can reuse. One App
// owns one ancestry cache; build it once per process.
type App struct {
	cfg      config.Config
	platform platform.Platform
	resolver *resolver.Resolver
	cache    *ancestry.Cache
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// New constructs the shared controller facade.
func New(opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("app")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	var p platform.Platform
	if opts.Platform != nil {
		p = *opts.Platform
	} else {
		p = platform.Detect(platform.Options{
			ProcfsRoot:      opts.Config.ProcfsRoot,
			ProcessTableTTL: opts.Config.ProcessTableTTL,
			Logger:          log,
		})
	}

	concurrency := opts.Config.BatchConcurrency
	if concurrency <= 0 {
		concurrency = config.Default().BatchConcurrency
	}

	return &App{
		cfg:      opts.Config,
		platform: p,
		resolver: resolver.New(p, resolver.WithMetrics(m), resolver.WithLogger(log)),
		cache: ancestry.New(p.Processes, p.Evidence,
			ancestry.WithMetrics(m),
			ancestry.WithLogger(log),
			ancestry.WithConcurrency(concurrency),
		),
		metrics: m,
		log:     log,
	}
}

// Metrics returns the registry the App records into.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// PlatformName reports which readers are in use.
func (a *App) PlatformName() string {
	return a.platform.Name
}

// Ancestry explains one process.
func (a *App) Ancestry(ctx context.Context, pid uint32, name string) (model.ProcessAncestry, error) {
	return a.cache.Get(ctx, pid, name)
}

// sockets reads the table and downgrades diagnostics to warnings so a
// partial table still renders.
func (a *App) sockets(ctx context.Context, filter model.SocketFilter) ([]model.SocketRecord, error) {
	records, err := a.resolver.Sockets(ctx, filter)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		if len(records) == 0 && errors.Is(err, platform.ErrUnavailable) {
			return nil, err
		}
		a.log.Warn("socket table incomplete", "error", err)
	}
	return records, nil
}

func (a *App) match(records []model.SocketRecord, q resolver.Query) (resolver.Match, error) {
	q.PreferPID = q.PreferPID || a.cfg.PreferPIDTargets
	m, err := resolver.Filter(records, q)
	if err != nil {
		return m, err
	}
	if m.Ambiguous {
		other := resolver.MatchPID
		if m.Kind == resolver.MatchPID {
			other = resolver.MatchPort
		}
		a.log.Warn("target matches both a port and a pid",
			"target", q.Target, "using", m.Kind, "also", other)
	}
	return m, nil
}
