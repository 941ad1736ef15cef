package main

import (
	"context"
	"fmt"
	"time"

	"repocrawl/internal/modkit/module"
	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/platform/logger"
	"repocrawl/internal/services/crawl/segments"

	crawlmod "repocrawl/internal/services/crawl/module"

	"github.com/spf13/cobra"
)

func (a *app) crawlCmd() *cobra.Command {
	var (
		checkToken bool
		migrate    bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl every segment and upsert the repositories found",
		Long: `Plans segments, pages through GitHub search for each one and upserts every
repository by id. A failed segment is logged and recorded in the run ledger;
the run continues and still exits 0.

Environment variables:
  GITHUB_TOKEN  GitHub token used as a bearer credential (required)
  CRAWL_DB_URL  database url; DATABASE_URL is used when unset`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCrawl(cmd.Context(), checkToken, migrate)
		},
	}
	a.segmentFlags(cmd)

	f := cmd.Flags()
	o := &a.opts
	f.IntVar(&o.PageSize, "page-size", o.PageSize, "results per page, at most 100 (CRAWL_PAGE_SIZE)")
	f.IntVar(&o.MaxPages, "max-pages", o.MaxPages, "page cap per segment (CRAWL_MAX_PAGES)")
	f.DurationVar(&o.PageDelay, "page-delay", o.PageDelay, "pause between pages of a segment (CRAWL_PAGE_DELAY)")
	f.IntVar(&o.RetryAttempts, "retries", o.RetryAttempts, "attempts per request (CRAWL_RETRY_ATTEMPTS)")
	f.IntVar(&o.RateMargin, "rate-margin", o.RateMargin, "pause when remaining budget drops below this (CRAWL_RATE_MARGIN)")
	f.Float64Var(&o.RPS, "rps", o.RPS, "proactive request pacing, 0 disables (CRAWL_RPS)")
	f.BoolVar(&o.RefreshSnapshot, "refresh-snapshot", o.RefreshSnapshot, "also refresh names and metadata on conflict (CRAWL_REFRESH_SNAPSHOT)")
	f.BoolVar(&o.Ledger, "ledger", o.Ledger, "record per segment status rows (CRAWL_LEDGER)")
	f.DurationVar(&o.SegmentTimeout, "segment-timeout", o.SegmentTimeout, "deadline per segment, 0 is unbounded (CRAWL_SEGMENT_TIMEOUT)")
	f.BoolVar(&checkToken, "check-token", true, "verify the token before crawling")
	f.BoolVar(&migrate, "migrate", true, "apply the schema before crawling")
	return cmd
}

func (a *app) runCrawl(ctx context.Context, checkToken, migrate bool) error {
	log := logger.Named("cmd")
	if a.opts.Token == "" {
		return perr.New(perr.ErrorCodeUnauthorized, "GITHUB_TOKEN is not set")
	}

	// Run closes the store; until then failures close it here
	m, st, err := a.buildModule(ctx, true)
	if err != nil {
		return err
	}

	ports := module.MustPortsOf[crawlmod.Ports](m)
	runner, err := m.Runner()
	if err != nil {
		_ = st.Close(ctx)
		return err
	}

	if migrate {
		if err := ports.Schema.Migrate(ctx); err != nil {
			_ = st.Close(ctx)
			return perr.Wrap(err, perr.ErrorCodeDB, "migrate")
		}
	}
	if checkToken {
		login, remaining, err := m.Whoami(ctx)
		if err != nil {
			_ = st.Close(ctx)
			return err
		}
		log.Info().Str("login", login).Int("remaining", remaining).Msg("token accepted")
	}

	res, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	for _, f := range res.Failed {
		log.Warn().Int("segment", f.Segment.Index).Str("query", f.Segment.Query).Str("error", f.ErrText()).Msg("segment failed")
	}
	fmt.Printf("run %s: %d/%d segments ok, %d pages, %d records, %d written in %s\n",
		res.RunID, len(res.Succeeded), res.Segments, res.Pages, res.Records, res.Written, res.Elapsed.Round(time.Millisecond))
	if len(res.Failed) > 0 {
		fmt.Printf("resume with --from-segment %d, or rerun: upserts are idempotent\n", res.Failed[0].Segment.Index)
	}
	return nil
}

func (a *app) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the segments a crawl would process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.opts.Validate(); err != nil {
				return err
			}
			strategy, err := segments.New(a.opts.Segments())
			if err != nil {
				return err
			}
			segs, err := strategy.Segments()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range segments.Slice(segs, a.opts.FromSegment) {
				fmt.Fprintf(out, "%4d  %-24s  %s\n", s.Index, s.Label, s.Query)
			}
			return nil
		},
	}
	a.segmentFlags(cmd)
	return cmd
}
