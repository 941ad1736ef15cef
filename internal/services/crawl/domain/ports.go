package domain

import (
	"context"
	"iter"
	"time"
)

// RunnerPort is the public port exposed by the crawl module
type RunnerPort interface {
	// Run crawls every planned segment and reports per segment outcomes
	Run(ctx context.Context) (*RunResult, error)

	// Plan returns the segments a run would process without touching the network
	Plan() ([]Segment, error)
}

// StatsPort reads back what runs have stored
type StatsPort interface {
	Summary(ctx context.Context, top, runs int) (Stats, error)
}

// SchemaPort applies the storage schema
type SchemaPort interface {
	Migrate(ctx context.Context) error
}

// Strategy partitions the search space into segments.
// Implementations are pure: the same inputs always yield the same sequence
type Strategy interface {
	Name() string
	Segments() ([]Segment, error)
}

// Searcher issues one search request through the resilient transport
type Searcher interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// PageSource drives a segment as a lazy sequence of pages
type PageSource interface {
	Pages(ctx context.Context, seg Segment) iter.Seq2[Page, error]
}

// Throttler is the rate-limit governor seen by the fetcher
type Throttler interface {
	Observe(remaining int, resetAt time.Time)
	ShouldThrottle() (time.Duration, bool)
}

// StorageRepo is the write side used by the orchestrator
type StorageRepo interface {
	// UpsertRepositories inserts or refreshes rows keyed by repo id
	UpsertRepositories(ctx context.Context, rows []Row, refreshSnapshot bool) (int, error)

	// StartSegment records a segment as running for a run
	StartSegment(ctx context.Context, runID string, seg Segment, at time.Time) error

	// FinishSegment records the outcome of a segment
	FinishSegment(ctx context.Context, runID string, rep SegmentReport) error
}

// ReadRepo is the read side used by stats
type ReadRepo interface {
	CountRepositories(ctx context.Context) (int64, error)
	TopRepositories(ctx context.Context, n int) ([]Row, error)
	RecentRuns(ctx context.Context, n int) ([]RunSummary, error)
}

// Closer releases the storage owned by a run
type Closer interface {
	Close(ctx context.Context) error
}
