// Package domain holds the crawl data model and the ports between its stages
package domain

import (
	"encoding/json"
	"time"
)

// ResultCap is the most results the search API will enumerate for a single query
const ResultCap = 1000

// Segment is one bounded query partition of the search space.
// Start and End are set only by date based strategies and describe [Start, End)
type Segment struct {
	Index int
	Label string
	Query string
	Start time.Time
	End   time.Time
}

// RateLimit is the budget reported alongside a search response.
// ResetAt is zero when the backend omitted it or sent something unparseable
type RateLimit struct {
	Limit     int
	Cost      int
	Remaining int
	ResetAt   time.Time
}

// SearchRequest is a single page request against the search backend
type SearchRequest struct {
	Query string
	First int
	After *string
}

// SearchResult is one decoded search response.
// Found is false when the payload carried no search object at all
type SearchResult struct {
	Found     bool
	Total     int
	HasNext   bool
	EndCursor string
	Repos     []Repository
	RateLimit *RateLimit
}

// Repository is one search hit as observed at fetch time
type Repository struct {
	ID       int64
	FullName string
	Name     string
	Owner    string
	URL      string
	Stars    int
	Language *string
	Raw      json.RawMessage
}

// Page is one fetched page of a segment
type Page struct {
	Segment   Segment
	Number    int
	Repos     []Repository
	HasNext   bool
	EndCursor string
	Total     int
	FetchedAt time.Time
}

// Row is the persisted projection of a Repository
type Row struct {
	RepoID     int64
	FullName   string
	OwnerLogin string
	Name       string
	HTMLURL    string
	Stars      int
	Language   *string
	FetchedAt  time.Time
	Metadata   []byte
}

// SegmentStatus is the ledger state of a segment within a run
type SegmentStatus string

const (
	// StatusRunning marks a segment that has started
	StatusRunning SegmentStatus = "running"

	// StatusOK marks a segment that drained without error
	StatusOK SegmentStatus = "ok"

	// StatusError marks a segment that failed
	StatusError SegmentStatus = "error"
)

// SegmentReport is the outcome of one segment
type SegmentReport struct {
	Segment  Segment
	Status   SegmentStatus
	Pages    int
	Records  int
	Written  int
	Err      error
	Started  time.Time
	Finished time.Time
}

// ErrText returns the failure message or empty
func (r SegmentReport) ErrText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RunResult summarizes a crawl run
type RunResult struct {
	RunID     string
	Segments  int
	Succeeded []SegmentReport
	Failed    []SegmentReport
	Pages     int
	Records   int
	Written   int
	Elapsed   time.Duration
}

// Add folds a segment report into the totals
func (r *RunResult) Add(rep SegmentReport) {
	r.Pages += rep.Pages
	r.Records += rep.Records
	r.Written += rep.Written
	if rep.Status == StatusError {
		r.Failed = append(r.Failed, rep)
		return
	}
	r.Succeeded = append(r.Succeeded, rep)
}

// RunSummary is a ledger rollup of one past run
type RunSummary struct {
	RunID     string
	Segments  int
	OK        int
	Failed    int
	Written   int
	StartedAt time.Time
}

// Stats is a read-only snapshot of stored rows and recent runs
type Stats struct {
	Repositories int64
	Top          []Row
	Runs         []RunSummary
}
