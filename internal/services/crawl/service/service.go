// Package service provides the crawl orchestrator
package service

import (
	"context"
	"time"

	"repocrawl/internal/modkit/repokit"
	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/platform/logger"
	"repocrawl/internal/services/crawl/domain"
	"repocrawl/internal/services/crawl/guardrails"
	"repocrawl/internal/services/crawl/segments"

	"github.com/google/uuid"
)

// Config holds configuration options for the crawl service
type Config struct {
	// FromSegment skips segments with a lower index, for resuming a run
	FromSegment int

	// RefreshSnapshot also refreshes identity fields and metadata on conflict
	RefreshSnapshot bool

	// Ledger records per segment status rows in crawl_segments
	Ledger bool

	// Timeouts applied via guardrails; zero means unbounded
	SegmentTimeout time.Duration
	DBTimeout      time.Duration

	// Page write retry for retryable db errors; <=0 -> 1 attempt, 250ms base
	SinkRetries   int
	SinkRetryBase time.Duration
}

// Service implements domain.RunnerPort
type Service struct {
	DB       repokit.TxRunner
	Binder   repokit.Binder[domain.StorageRepo]
	Strategy domain.Strategy
	Pages    domain.PageSource
	Cfg      Config

	// Closer releases the store when Run returns; optional
	Closer domain.Closer

	now   func() time.Time
	newID func() string
	sleep func(context.Context, time.Duration) error
}

// New constructs the crawl service
func New(
	db repokit.TxRunner,
	binder repokit.Binder[domain.StorageRepo],
	strategy domain.Strategy,
	pages domain.PageSource,
	cfg Config,
) *Service {
	if db == nil {
		panic("crawl.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("crawl.Service requires a non nil Repo binder")
	}
	if strategy == nil || pages == nil {
		panic("crawl.Service requires a strategy and a page source")
	}
	return &Service{
		DB: db, Binder: binder,
		Strategy: strategy, Pages: pages,
		Cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
		sleep: guardrails.Sleep,
	}
}

// WithCloser hands ownership of the store to the service
func (s *Service) WithCloser(c domain.Closer) *Service {
	s.Closer = c
	return s
}

// Plan implements domain.RunnerPort
func (s *Service) Plan() ([]domain.Segment, error) {
	segs, err := s.Strategy.Segments()
	if err != nil {
		return nil, err
	}
	return segments.Slice(segs, s.Cfg.FromSegment), nil
}

// Run implements domain.RunnerPort. Segment failures are recorded and skipped;
// only planning errors and cancellation surface as an error
func (s *Service) Run(ctx context.Context) (*domain.RunResult, error) {
	defer s.close(ctx)

	segs, err := s.Plan()
	if err != nil {
		return nil, err
	}

	res := &domain.RunResult{RunID: s.newID(), Segments: len(segs)}
	ctx = logger.WithRun(ctx, res.RunID)
	log := logger.C(ctx)
	start := s.now()

	log.Info().
		Str("strategy", s.Strategy.Name()).
		Int("segments", len(segs)).
		Int("from_segment", s.Cfg.FromSegment).
		Msg("crawl: run starting")

	for _, seg := range segs {
		if ctx.Err() != nil {
			break
		}
		res.Add(s.runSegment(ctx, res.RunID, seg))
	}
	res.Elapsed = s.now().Sub(start)

	ev := log.Info()
	if len(res.Failed) > 0 {
		ev = log.Warn()
	}
	ev.Int("segments", res.Segments).
		Int("succeeded", len(res.Succeeded)).
		Int("failed", len(res.Failed)).
		Int("pages", res.Pages).
		Int("records", res.Records).
		Int("written", res.Written).
		Dur("elapsed", res.Elapsed).
		Msg("crawl: run finished")

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// runSegment drains one segment; every failure, panics included, ends up in rep.Err
func (s *Service) runSegment(ctx context.Context, runID string, seg domain.Segment) (rep domain.SegmentReport) {
	ctx = logger.WithSegment(ctx, seg.Index)
	log := logger.C(ctx).With().Str("query", seg.Query).Logger()

	tos := s.timeouts()
	segCtx, cancel := guardrails.WithSegment(ctx, tos)
	defer cancel()

	rep = domain.SegmentReport{Segment: seg, Status: domain.StatusRunning, Started: s.now()}
	s.ledger(ctx, func(r domain.StorageRepo, c context.Context) error {
		return r.StartSegment(c, runID, seg, rep.Started)
	})

	defer func() {
		if p := recover(); p != nil {
			rep.Err = perr.PanicErrf("segment %d panicked: %v", seg.Index, p)
		}
		rep.Finished = s.now()
		if rep.Err != nil {
			rep.Status = domain.StatusError
			log.Error().Err(rep.Err).Int("pages", rep.Pages).Int("written", rep.Written).Msg("crawl: segment failed")
		} else {
			rep.Status = domain.StatusOK
			log.Info().Int("pages", rep.Pages).Int("records", rep.Records).Int("written", rep.Written).
				Dur("elapsed", rep.Finished.Sub(rep.Started)).Msg("crawl: segment done")
		}
		final := rep
		s.ledger(ctx, func(r domain.StorageRepo, c context.Context) error {
			return r.FinishSegment(c, runID, final)
		})
	}()

	for page, err := range s.Pages.Pages(segCtx, seg) {
		if err != nil {
			rep.Err = err
			return rep
		}
		n, err := s.apply(segCtx, page)
		rep.Pages++
		rep.Records += len(page.Repos)
		rep.Written += n
		if err != nil {
			rep.Err = err
			return rep
		}
		log.Info().Int("page", page.Number).Int("records", len(page.Repos)).Int("written", n).
			Bool("has_next", page.HasNext).Msg("crawl: page stored")
	}
	return rep
}

// ledger runs a best-effort ledger write that survives segment timeouts and cancellation
func (s *Service) ledger(ctx context.Context, fn func(domain.StorageRepo, context.Context) error) {
	if !s.Cfg.Ledger {
		return
	}
	tos := s.timeouts()
	if tos.DB <= 0 {
		tos.DB = 10 * time.Second
	}
	dbCtx, cancel := guardrails.ForDB(context.WithoutCancel(ctx), tos)
	defer cancel()
	err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error { return fn(s.Binder.Bind(q), dbCtx) })
	if err != nil {
		logger.C(ctx).Warn().Err(err).Msg("crawl: ledger write failed")
	}
}

func (s *Service) close(ctx context.Context) {
	if s.Closer == nil {
		return
	}
	if err := s.Closer.Close(context.WithoutCancel(ctx)); err != nil {
		logger.C(ctx).Error().Err(err).Msg("crawl: failed to close store")
	}
}

func (s *Service) timeouts() guardrails.Timeouts {
	return guardrails.Timeouts{Segment: s.Cfg.SegmentTimeout, DB: s.Cfg.DBTimeout}
}
