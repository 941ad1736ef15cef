package module

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"repocrawl/internal/modkit"
	"repocrawl/internal/modkit/module"
	"repocrawl/internal/platform/config"
	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/platform/store"
	kit "repocrawl/internal/platform/testkit"
	"repocrawl/internal/services/crawl/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(),
		store.Config{URL: "sqlite://" + filepath.Join(t.TempDir(), "crawl.db")},
		store.WithLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

func baseOptions() Options {
	o := FromConfig(config.New())
	o.Token = ""
	o.Strategy = "static"
	o.Queries = []string{"stars:>10000 sort:stars-desc", "stars:5000..9999 sort:stars-desc"}
	return o
}

// twoPages serves two pages for the first query and one for any other
type twoPages struct{ reqs []domain.SearchRequest }

func (s *twoPages) Search(_ context.Context, r domain.SearchRequest) (*domain.SearchResult, error) {
	s.reqs = append(s.reqs, r)
	rl := &domain.RateLimit{Limit: 5000, Remaining: 4000, ResetAt: time.Now().Add(time.Hour)}
	lang := "Go"
	switch {
	case r.Query == "stars:>10000 sort:stars-desc" && r.After == nil:
		return &domain.SearchResult{Found: true, Total: 3, HasNext: true, EndCursor: "c1", RateLimit: rl,
			Repos: []domain.Repository{
				{ID: 1, FullName: "a/one", Name: "one", Owner: "a", Stars: 30000, Language: &lang},
				{ID: 2, FullName: "a/two", Name: "two", Owner: "a", Stars: 20000},
			}}, nil
	case r.Query == "stars:>10000 sort:stars-desc":
		return &domain.SearchResult{Found: true, Total: 3, RateLimit: rl,
			Repos: []domain.Repository{{ID: 3, FullName: "b/three", Name: "three", Owner: "b", Stars: 15000}}}, nil
	default:
		return &domain.SearchResult{Found: true, Total: 1, RateLimit: rl,
			Repos: []domain.Repository{{ID: 2, FullName: "a/two", Name: "two", Owner: "a", Stars: 9000}}}, nil
	}
}

func TestFromConfig_Defaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "tok")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("CRAWL_DB_URL", "")
	t.Setenv("CRAWL_STRATEGY", "")

	o := FromConfig(config.New())
	assert.Equal(t, "tok", o.Token)
	assert.Equal(t, "postgres://x", o.DBURL)
	assert.Equal(t, "daterange", o.Strategy)
	assert.Equal(t, 50, o.PageSize)
	assert.Equal(t, 5, o.RetryAttempts)
	assert.Equal(t, 2*time.Second, o.RetryBase)
	assert.Equal(t, time.Minute, o.RetryMax)
	assert.Equal(t, 1, o.To.Day())
	assert.True(t, o.Ledger)
	require.NoError(t, o.Validate())
}

func TestFromConfig_Overrides(t *testing.T) {
	t.Setenv("CRAWL_DB_URL", "sqlite://crawl.db")
	t.Setenv("CRAWL_STRATEGY", "StarBands")
	t.Setenv("CRAWL_STAR_BANDS", "100,1000")
	t.Setenv("CRAWL_PAGE_DELAY", "0s")
	t.Setenv("CRAWL_FROM", "2020-01-01")

	o := FromConfig(config.New())
	assert.Equal(t, "sqlite://crawl.db", o.DBURL)
	assert.Equal(t, "starbands", o.Strategy)
	assert.Equal(t, []int{100, 1000}, o.StarBands)
	assert.Zero(t, o.PageDelay)
	assert.Equal(t, 2020, o.From.Year())
}

func TestFromConfig_MalformedDatePanics(t *testing.T) {
	t.Setenv("CRAWL_FROM", "2020/01/01")
	kit.MustPanic(t, func() { _ = FromConfig(config.New()) })
}

func TestOptions_Validate(t *testing.T) {
	o := baseOptions()
	o.StarBands = []int{10, 5}
	err := o.Validate()
	require.True(t, perr.IsCode(err, perr.ErrorCodeValidation), "got %v", err)
	e, _ := perr.As(err)
	assert.Equal(t, "CRAWL_STAR_BANDS", e.Field())

	o = baseOptions()
	o.RetryMax = time.Second
	err = o.Validate()
	e, _ = perr.As(err)
	require.NotNil(t, e)
	assert.Equal(t, "CRAWL_RETRY_MAX", e.Field())

	o = baseOptions()
	o.PageSize = 500
	assert.Error(t, o.Validate())
}

func TestOptions_ValidateNormalizesCase(t *testing.T) {
	o := baseOptions()
	o.Strategy = " Static "
	o.Granularity = "MONTH"
	require.NoError(t, o.Validate())
	assert.Equal(t, "static", o.Strategy)
	assert.Equal(t, "month", o.Granularity)

	st := openStore(t)
	o.Strategy = "StarBands"
	_, err := New(modkit.FromStore(st, config.New()), o)
	require.NoError(t, err)
}

func TestNew_WithoutTokenHasNoRunner(t *testing.T) {
	st := openStore(t)
	m, err := New(modkit.FromStore(st, config.New()), baseOptions())
	require.NoError(t, err)

	_, err = m.Runner()
	assert.True(t, perr.IsCode(err, perr.ErrorCodeUnauthorized))

	login, remaining, err := m.Whoami(context.Background())
	require.NoError(t, err)
	assert.Empty(t, login)
	assert.Zero(t, remaining)

	p := module.MustPortsOf[domain.SchemaPort](m)
	require.NoError(t, p.Migrate(context.Background()))
}

func TestNew_RejectsBadStrategyInputs(t *testing.T) {
	st := openStore(t)
	o := baseOptions()
	o.Strategy = "daterange"
	o.To = o.From
	_, err := New(modkit.FromStore(st, config.New()), o)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeInvalidArgument))
}

func TestModule_CrawlEndToEnd(t *testing.T) {
	st := openStore(t)
	src := &twoPages{}
	sl := &kit.Sleeper{}

	m, err := New(modkit.FromStore(st, config.New()), baseOptions(),
		modkit.WithName("crawl-test"),
		modkit.WithPorts[domain.Searcher](src),
		modkit.WithPorts(SleepFunc(sl.Sleep)),
	)
	require.NoError(t, err)
	assert.Equal(t, "crawl-test", m.Name())

	ports := module.MustPortsOf[Ports](m)
	require.NoError(t, ports.Schema.Migrate(context.Background()))

	runner, err := m.Runner()
	require.NoError(t, err)

	plan, err := runner.Plan()
	require.NoError(t, err)
	require.Len(t, plan, 2)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 4, res.Records)
	assert.Len(t, src.reqs, 3)
	require.NotNil(t, src.reqs[1].After)
	assert.Equal(t, "c1", *src.reqs[1].After)

	// one inter-page delay inside the first segment, none after a last page
	assert.Equal(t, []time.Duration{2 * time.Second}, sl.Calls())

	stats, err := ports.Stats.Summary(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Repositories)
	require.Len(t, stats.Top, 3)
	assert.Equal(t, int64(1), stats.Top[0].RepoID)
	require.Len(t, stats.Runs, 1)
	assert.Equal(t, res.RunID, stats.Runs[0].RunID)
	assert.Equal(t, 2, stats.Runs[0].OK)

	// a second identical run converges on the same rows
	res, err = runner.Run(context.Background())
	require.NoError(t, err)
	stats, err = ports.Stats.Summary(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Repositories)
	assert.Len(t, stats.Runs, 2)
}
