// Package module provides the crawl module implementation
package module

import (
	"context"
	"time"

	"repocrawl/internal/adapters/ingest/github"
	"repocrawl/internal/modkit"
	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/services/crawl/domain"
	"repocrawl/internal/services/crawl/fetch"
	"repocrawl/internal/services/crawl/governor"
	"repocrawl/internal/services/crawl/ingest"
	"repocrawl/internal/services/crawl/repo"
	"repocrawl/internal/services/crawl/segments"
	"repocrawl/internal/services/crawl/service"
)

// SleepFunc is the context-aware pause used for throttle and page delays; inject with modkit.WithPorts
type SleepFunc func(context.Context, time.Duration) error

// Ports defines the crawl module ports
type Ports struct {
	Runner domain.RunnerPort
	Stats  domain.StatsPort
	Schema domain.SchemaPort
}

// Module implements the crawl module
type Module struct {
	deps   modkit.Deps
	name   string
	opts   Options
	client *github.Client
	ports  Ports
}

// New constructs the crawl module.
// The runner is only wired when a token is configured or a domain.Searcher is injected;
// stats and schema work without credentials
func New(deps modkit.Deps, o Options, extra ...modkit.Option) (*Module, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if deps.DB == nil {
		return nil, perr.New(perr.ErrorCodeUnavailable, "crawl module requires an opened store")
	}

	b := modkit.Build(extra...)
	m := &Module{deps: deps, name: "crawl", opts: o}
	if b.Name != "" {
		m.name = b.Name
	}

	binder, err := repo.For(deps.Dialect)
	if err != nil {
		return nil, err
	}
	m.ports.Stats = service.NewStats(deps.DB, binder.Reader())
	m.ports.Schema = repo.NewSchema(deps.DB, deps.Dialect)

	strategy, err := segments.New(o.Segments())
	if err != nil {
		return nil, err
	}
	if _, err := strategy.Segments(); err != nil {
		return nil, err
	}

	searcher, ok := modkit.Port[domain.Searcher](b)
	if !ok && o.Token != "" {
		m.client = github.NewClient(github.Options{
			BaseURL:           o.APIURL,
			UserAgent:         o.UserAgent,
			Timeout:           o.HTTPTimeout,
			Token:             o.Token,
			MaxAttempts:       o.RetryAttempts,
			RetryBase:         o.RetryBase,
			RetryMax:          o.RetryMax,
			RequestsPerSecond: o.RPS,
		})
		searcher = ingest.NewSearcher(m.client)
	}
	if searcher == nil {
		return m, nil
	}

	gov := governor.New(governor.Config{
		Margin:       o.RateMargin,
		Padding:      o.RatePadding,
		FallbackWait: o.RateFallback,
		MaxWait:      o.RateMaxWait,
	})
	pages := fetch.New(searcher, gov, fetch.Options{
		PageSize:  o.PageSize,
		MaxPages:  o.MaxPages,
		PageDelay: o.PageDelay,
	})
	if sleep, ok := modkit.Port[SleepFunc](b); ok {
		pages.WithSleep(sleep)
	}

	svc := service.New(deps.DB, binder.Storage(), strategy, pages, service.Config{
		FromSegment:     o.FromSegment,
		RefreshSnapshot: o.RefreshSnapshot,
		Ledger:          o.Ledger,
		SegmentTimeout:  o.SegmentTimeout,
		DBTimeout:       o.DBTimeout,
		SinkRetries:     o.SinkRetries,
	})
	if c, ok := modkit.Port[domain.Closer](b); ok {
		svc.WithCloser(c)
	}
	m.ports.Runner = svc
	return m, nil
}

// Name returns the module name
func (m *Module) Name() string { return m.name }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// Runner returns the crawl runner or an Unauthorized error when no credential was configured
func (m *Module) Runner() (domain.RunnerPort, error) {
	if m.ports.Runner == nil {
		return nil, perr.New(perr.ErrorCodeUnauthorized, "GITHUB_TOKEN is not set")
	}
	return m.ports.Runner, nil
}

// Whoami checks the configured credential against the API and returns its login and remaining budget.
// It is a no-op when the searcher was injected
func (m *Module) Whoami(ctx context.Context) (string, int, error) {
	if m.client == nil {
		return "", 0, nil
	}
	login, rl, err := m.client.Whoami(ctx)
	if err != nil {
		return "", 0, err
	}
	remaining := -1
	if rl != nil {
		remaining = rl.Remaining
	}
	return login, remaining, nil
}
