// Package fetch drives one segment through the search backend page by page
package fetch

import (
	"context"
	"iter"
	"time"

	"repocrawl/internal/platform/logger"
	"repocrawl/internal/services/crawl/domain"
	"repocrawl/internal/services/crawl/guardrails"
)

// Options bounds a segment walk
type Options struct {
	// PageSize is the number of results requested per page; default 50
	PageSize int

	// MaxPages caps pages per segment regardless of hasNextPage; default 20
	MaxPages int

	// PageDelay is the pause after every page that is followed by another
	PageDelay time.Duration
}

// Fetcher implements domain.PageSource
type Fetcher struct {
	src   domain.Searcher
	gov   domain.Throttler
	opts  Options
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// New builds a Fetcher; gov may be nil to disable throttling
func New(src domain.Searcher, gov domain.Throttler, o Options) *Fetcher {
	if o.PageSize <= 0 {
		o.PageSize = 50
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 20
	}
	if o.PageDelay < 0 {
		o.PageDelay = 0
	}
	return &Fetcher{src: src, gov: gov, opts: o, sleep: guardrails.Sleep, now: time.Now}
}

// WithSleep replaces the blocking sleep used for throttle and page delay pauses
func (f *Fetcher) WithSleep(fn func(context.Context, time.Duration) error) *Fetcher {
	if fn != nil {
		f.sleep = fn
	}
	return f
}

// Pages implements domain.PageSource. The sequence ends after the last page or
// after yielding a single error; breaking out of the loop stops fetching
func (f *Fetcher) Pages(ctx context.Context, seg domain.Segment) iter.Seq2[domain.Page, error] {
	return func(yield func(domain.Page, error) bool) {
		log := logger.C(ctx).With().Str("query", seg.Query).Logger()
		var after *string

		for n := 1; n <= f.opts.MaxPages; n++ {
			if err := ctx.Err(); err != nil {
				yield(domain.Page{}, err)
				return
			}

			res, err := f.src.Search(ctx, domain.SearchRequest{Query: seg.Query, First: f.opts.PageSize, After: after})
			if err != nil {
				yield(domain.Page{}, err)
				return
			}

			// budget first, even when this page ends the segment
			if res != nil && res.RateLimit != nil && f.gov != nil {
				f.gov.Observe(res.RateLimit.Remaining, res.RateLimit.ResetAt)
				if wait, ok := f.gov.ShouldThrottle(); ok {
					log.Warn().Int("remaining", res.RateLimit.Remaining).Time("reset_at", res.RateLimit.ResetAt).
						Dur("sleep", wait).Msg("fetch: rate limit margin reached, pausing")
					if err := f.sleep(ctx, wait); err != nil {
						yield(domain.Page{}, err)
						return
					}
				}
			}

			if res == nil || !res.Found {
				log.Warn().Int("page", n).Msg("fetch: response without search payload, ending segment")
				return
			}
			if n == 1 && res.Total > domain.ResultCap {
				log.Warn().Int("total", res.Total).Int("cap", domain.ResultCap).
					Msg("fetch: segment exceeds the result cap, narrow it to reach every result")
			}
			if len(res.Repos) == 0 {
				log.Debug().Int("page", n).Bool("has_next", res.HasNext).Msg("fetch: empty page, segment exhausted")
				return
			}

			page := domain.Page{
				Segment:   seg,
				Number:    n,
				Repos:     res.Repos,
				HasNext:   res.HasNext,
				EndCursor: res.EndCursor,
				Total:     res.Total,
				FetchedAt: f.now().UTC(),
			}
			if !yield(page, nil) {
				return
			}

			if !res.HasNext || res.EndCursor == "" {
				return
			}
			if n == f.opts.MaxPages {
				log.Info().Int("max_pages", f.opts.MaxPages).Msg("fetch: page ceiling reached")
				return
			}
			cur := res.EndCursor
			after = &cur

			if err := f.sleep(ctx, f.opts.PageDelay); err != nil {
				yield(domain.Page{}, err)
				return
			}
		}
	}
}
