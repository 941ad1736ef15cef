// Command repocrawl harvests GitHub repository metadata into a relational store
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repocrawl/internal/modkit"
	"repocrawl/internal/platform/config"
	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/platform/logger"
	"repocrawl/internal/platform/store"
	"repocrawl/internal/platform/version"
	"repocrawl/internal/services/crawl/domain"

	crawlmod "repocrawl/internal/services/crawl/module"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// app carries the resolved configuration shared by every subcommand
type app struct {
	root config.Conf
	opts crawlmod.Options

	maxConns    int
	logSQL      bool
	slowQueryMs int
}

func main() {
	// .env is optional; the real environment always wins
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Get().Error().Err(err).Str("code", perr.CodeOf(err).String()).Msg("repocrawl failed")
		stop()
		os.Exit(perr.ExitCode(perr.CodeOf(err)))
	}
}

func newRootCmd() *cobra.Command {
	a := &app{root: config.New()}
	a.opts = crawlmod.FromConfig(a.root)
	db := a.root.Prefix("CRAWL_DB_")
	a.maxConns = db.MayInt("MAX_CONNS", 1)
	a.logSQL = db.MayBool("LOG_SQL", false)
	a.slowQueryMs = db.MayInt("SLOW_MS", 500)

	root := &cobra.Command{
		Use:           "repocrawl",
		Short:         "Harvest GitHub repository metadata through the GraphQL search API",
		Version:       version.Info().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.opts.DBURL, "db", a.opts.DBURL, "database url: postgres://... or sqlite://path (CRAWL_DB_URL, DATABASE_URL)")
	pf.BoolVar(&a.logSQL, "log-sql", a.logSQL, "log every statement (CRAWL_DB_LOG_SQL)")

	root.AddCommand(a.crawlCmd(), a.planCmd(), a.migrateCmd(), a.statsCmd())
	return root
}

// segmentFlags are shared by crawl and plan
func (a *app) segmentFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	o := &a.opts
	f.StringVar(&o.Strategy, "strategy", o.Strategy, "segment strategy: daterange | static | starbands (CRAWL_STRATEGY)")
	f.StringVar(&o.Field, "field", o.Field, "date qualifier for daterange: created | pushed (CRAWL_FIELD)")
	f.Var(dateValue{&o.From}, "from", "daterange start, inclusive, YYYY-MM-DD (CRAWL_FROM)")
	f.Var(dateValue{&o.To}, "to", "daterange end, exclusive, YYYY-MM-DD (CRAWL_TO)")
	f.StringVar(&o.Granularity, "granularity", o.Granularity, "daterange step: day | week | month | year (CRAWL_GRANULARITY)")
	f.StringVar(&o.Filter, "filter", o.Filter, "extra search qualifiers added to every segment (CRAWL_FILTER)")
	f.StringVar(&o.Sort, "sort", o.Sort, "sort qualifier, e.g. stars-desc (CRAWL_SORT)")
	f.StringArrayVar(&o.Queries, "query", o.Queries, "static query, repeatable (CRAWL_QUERIES)")
	f.IntSliceVar(&o.StarBands, "bands", o.StarBands, "ascending star band bounds (CRAWL_STAR_BANDS)")
	f.IntVar(&o.FromSegment, "from-segment", o.FromSegment, "skip segments with a lower index (CRAWL_FROM_SEGMENT)")
}

// openStore connects to the configured database
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	if a.opts.DBURL == "" {
		return nil, perr.InvalidArgf("no database configured: set CRAWL_DB_URL or DATABASE_URL, or pass --db")
	}
	st, err := store.Open(ctx, store.Config{
		URL:         a.opts.DBURL,
		MaxConns:    int32(max(a.maxConns, 1)),
		LogSQL:      a.logSQL,
		SlowQueryMs: a.slowQueryMs,
	}, store.WithLogger(*logger.Named("store")))
	if err != nil {
		if perr.CodeOf(err) == perr.ErrorCodeUnknown {
			err = perr.Wrap(err, perr.ErrorCodeUnavailable, "open store")
		}
		return nil, err
	}
	return st, nil
}

// buildModule opens the store and wires the crawl module.
// With handOff the runner closes the store when Run returns
func (a *app) buildModule(ctx context.Context, handOff bool) (*crawlmod.Module, *store.Store, error) {
	if err := a.opts.Validate(); err != nil {
		return nil, nil, err
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	var extra []modkit.Option
	if handOff {
		extra = append(extra, modkit.WithPorts[domain.Closer](st))
	}
	m, err := crawlmod.New(modkit.FromStore(st, a.root), a.opts, extra...)
	if err != nil {
		_ = st.Close(context.WithoutCancel(ctx))
		return nil, nil, err
	}
	return m, st, nil
}

// dateValue adapts a time.Time to a YYYY-MM-DD pflag value
type dateValue struct{ t *time.Time }

func (d dateValue) String() string {
	if d.t == nil || d.t.IsZero() {
		return ""
	}
	return d.t.Format(config.DateLayout)
}

func (d dateValue) Set(s string) error {
	t, err := time.ParseInLocation(config.DateLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("want %s: %w", config.DateLayout, err)
	}
	*d.t = t
	return nil
}

func (dateValue) Type() string { return "date" }
