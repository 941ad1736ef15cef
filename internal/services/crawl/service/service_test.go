package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"sync"
	"testing"
	"time"

	"repocrawl/internal/modkit/repokit"
	perr "repocrawl/internal/platform/errors"
	kit "repocrawl/internal/platform/testkit"
	"repocrawl/internal/services/crawl/domain"
	"repocrawl/internal/services/crawl/fetch"
	"repocrawl/internal/services/crawl/governor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx runs fn with a nil queryer; the binder below ignores it
type fakeTx struct {
	repokit.Queryer
	calls int
}

func (f *fakeTx) Tx(_ context.Context, fn func(q repokit.Queryer) error) error {
	f.calls++
	return fn(nil)
}

type upsertCall struct {
	rows    []domain.Row
	refresh bool
}

type fakeStorage struct {
	mu        sync.Mutex
	upserts   []upsertCall
	started   []int
	finished  []domain.SegmentReport
	failN     int
	failErr   error
	ledgerErr error
}

func (s *fakeStorage) UpsertRepositories(_ context.Context, rows []domain.Row, refresh bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failN > 0 {
		s.failN--
		return 0, s.failErr
	}
	s.upserts = append(s.upserts, upsertCall{rows: rows, refresh: refresh})
	return len(rows), nil
}

func (s *fakeStorage) StartSegment(_ context.Context, _ string, seg domain.Segment, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, seg.Index)
	return s.ledgerErr
}

func (s *fakeStorage) FinishSegment(_ context.Context, _ string, rep domain.SegmentReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, rep)
	return s.ledgerErr
}

func (s *fakeStorage) binder() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(repokit.Queryer) domain.StorageRepo { return s })
}

type fixedStrategy struct{ segs []domain.Segment }

func (f fixedStrategy) Name() string                        { return "fixed" }
func (f fixedStrategy) Segments() ([]domain.Segment, error) { return f.segs, nil }

type brokenStrategy struct{}

func (brokenStrategy) Name() string { return "broken" }
func (brokenStrategy) Segments() ([]domain.Segment, error) {
	return nil, perr.InvalidArgf("no segments")
}

func makeSegments(n int) []domain.Segment {
	out := make([]domain.Segment, n)
	for i := range out {
		out[i] = domain.Segment{Index: i, Label: "s" + strconv.Itoa(i), Query: "q" + strconv.Itoa(i)}
	}
	return out
}

// pagesBySegment yields one page of two repos per segment unless the segment has a scripted behavior
type pagesBySegment struct {
	fail   map[int]error
	panics map[int]bool
	seen   []int
}

func (p *pagesBySegment) Pages(_ context.Context, seg domain.Segment) iter.Seq2[domain.Page, error] {
	p.seen = append(p.seen, seg.Index)
	return func(yield func(domain.Page, error) bool) {
		if p.panics[seg.Index] {
			panic("boom")
		}
		if err := p.fail[seg.Index]; err != nil {
			yield(domain.Page{}, err)
			return
		}
		base := int64(seg.Index * 10)
		yield(domain.Page{
			Segment: seg,
			Number:  1,
			Repos: []domain.Repository{
				{ID: base + 1, FullName: fmt.Sprintf("o/r%d", base+1), Raw: []byte(`{"databaseId":1}`)},
				{ID: base + 2, FullName: fmt.Sprintf("o/r%d", base+2)},
			},
			FetchedAt: time.Unix(1700000000, 0).UTC(),
		}, nil)
	}
}

type closer struct{ closed int }

func (c *closer) Close(context.Context) error {
	c.closed++
	return nil
}

func newSvc(t *testing.T, segs []domain.Segment, src domain.PageSource, st *fakeStorage, cfg Config) (*Service, *fakeTx) {
	t.Helper()
	tx := &fakeTx{}
	s := New(tx, st.binder(), fixedStrategy{segs: segs}, src, cfg)
	s.newID = func() string { return "run-test" }
	s.sleep = (&kit.Sleeper{}).Sleep
	return s, tx
}

func TestNew_PanicsOnMissingDeps(t *testing.T) {
	st := &fakeStorage{}
	kit.MustPanic(t, func() { New(nil, st.binder(), fixedStrategy{}, &pagesBySegment{}, Config{}) })
	kit.MustPanic(t, func() { New(&fakeTx{}, nil, fixedStrategy{}, &pagesBySegment{}, Config{}) })
	kit.MustPanic(t, func() { New(&fakeTx{}, st.binder(), nil, &pagesBySegment{}, Config{}) })
}

func TestRun_SegmentFailureIsIsolated(t *testing.T) {
	st := &fakeStorage{}
	src := &pagesBySegment{fail: map[int]error{5: perr.Unavailablef("retries exhausted after 5 attempts")}}
	c := &closer{}
	s, _ := newSvc(t, makeSegments(10), src, st, Config{Ledger: true})
	s.WithCloser(c)

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-test", res.RunID)
	assert.Equal(t, 10, res.Segments)
	assert.Len(t, res.Succeeded, 9)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 5, res.Failed[0].Segment.Index)
	assert.True(t, perr.IsCode(res.Failed[0].Err, perr.ErrorCodeUnavailable))

	// every segment after the failure was still fetched and written
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, src.seen)
	assert.Len(t, st.upserts, 9)
	assert.Equal(t, 18, res.Written)
	assert.Equal(t, 9, res.Pages)

	assert.Len(t, st.started, 10)
	require.Len(t, st.finished, 10)
	assert.Equal(t, domain.StatusError, st.finished[5].Status)
	assert.Equal(t, domain.StatusOK, st.finished[6].Status)
	assert.Equal(t, 1, c.closed)
}

func TestRun_PanicBecomesSegmentFailure(t *testing.T) {
	st := &fakeStorage{}
	src := &pagesBySegment{panics: map[int]bool{1: true}}
	s, _ := newSvc(t, makeSegments(3), src, st, Config{Ledger: true})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.True(t, perr.IsCode(res.Failed[0].Err, perr.ErrorCodePanic))
	assert.Len(t, res.Succeeded, 2)
	assert.Equal(t, domain.StatusError, st.finished[1].Status)
}

func TestRun_LedgerDisabledAndLedgerErrorsIgnored(t *testing.T) {
	st := &fakeStorage{}
	s, tx := newSvc(t, makeSegments(2), &pagesBySegment{}, st, Config{})
	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.started)
	assert.Empty(t, st.finished)
	assert.Equal(t, 2, tx.calls)
	assert.Len(t, res.Succeeded, 2)

	st = &fakeStorage{ledgerErr: errors.New("no table")}
	s, _ = newSvc(t, makeSegments(2), &pagesBySegment{}, st, Config{Ledger: true})
	res, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 2)
	assert.Len(t, st.upserts, 2)
}

func TestRun_FromSegmentResumes(t *testing.T) {
	st := &fakeStorage{}
	src := &pagesBySegment{}
	s, _ := newSvc(t, makeSegments(6), src, st, Config{FromSegment: 4})

	plan, err := s.Plan()
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, 4, plan[0].Index)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5}, src.seen)
	assert.Equal(t, 2, res.Segments)
}

func TestRun_PlanErrorIsFatal(t *testing.T) {
	st := &fakeStorage{}
	c := &closer{}
	s := New(&fakeTx{}, st.binder(), brokenStrategy{}, &pagesBySegment{}, Config{}).WithCloser(c)
	res, err := s.Run(context.Background())
	assert.Nil(t, res)
	assert.True(t, perr.IsCode(err, perr.ErrorCodeInvalidArgument))
	assert.Equal(t, 1, c.closed)
}

func TestRun_CancelledStopsLoop(t *testing.T) {
	st := &fakeStorage{}
	src := &pagesBySegment{}
	c := &closer{}
	s, _ := newSvc(t, makeSegments(5), src, st, Config{})
	s.WithCloser(c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Empty(t, src.seen)
	assert.Equal(t, 1, c.closed)
}

func TestApply_RetriesRetryableErrors(t *testing.T) {
	st := &fakeStorage{failN: 2, failErr: errors.New("database is locked")}
	sl := &kit.Sleeper{}
	s, tx := newSvc(t, makeSegments(1), &pagesBySegment{}, st, Config{SinkRetries: 3, SinkRetryBase: 100 * time.Millisecond})
	s.sleep = sl.Sleep

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Succeeded, 1)
	assert.Equal(t, 3, tx.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sl.Calls())
}

func TestApply_NonRetryableFailsSegment(t *testing.T) {
	st := &fakeStorage{failN: 1, failErr: errors.New("syntax error")}
	s, tx := newSvc(t, makeSegments(2), &pagesBySegment{}, st, Config{SinkRetries: 3})

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 0, res.Failed[0].Segment.Index)
	assert.Len(t, res.Succeeded, 1)
	assert.Equal(t, 2, tx.calls)
}

func TestToRows(t *testing.T) {
	lang := "Go"
	at := time.Unix(1700000000, 0).UTC()
	rows := ToRows(domain.Page{
		FetchedAt: at,
		Repos: []domain.Repository{
			{ID: 7, FullName: "a/b", Name: "b", Owner: "a", URL: "https://github.com/a/b", Stars: 12, Language: &lang, Raw: []byte(`{"x":1}`)},
			{ID: 8, FullName: "a/c"},
		},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, domain.Row{
		RepoID: 7, FullName: "a/b", OwnerLogin: "a", Name: "b", HTMLURL: "https://github.com/a/b",
		Stars: 12, Language: &lang, FetchedAt: at, Metadata: []byte(`{"x":1}`),
	}, rows[0])
	assert.JSONEq(t, `{"databaseId":8,"nameWithOwner":"a/c","stargazerCount":0}`, string(rows[1].Metadata))
	assert.Empty(t, ToRows(domain.Page{}))
}

// searchOnce serves one page of three repositories with a large remaining budget
type searchOnce struct{ calls int }

func (s *searchOnce) Search(_ context.Context, r domain.SearchRequest) (*domain.SearchResult, error) {
	s.calls++
	return &domain.SearchResult{
		Found: true,
		Total: 3,
		Repos: []domain.Repository{
			{ID: 1, FullName: "o/one", Stars: 300},
			{ID: 2, FullName: "o/two", Stars: 200},
			{ID: 3, FullName: "o/three", Stars: 100},
		},
		RateLimit: &domain.RateLimit{Limit: 5000, Cost: 1, Remaining: 4999, ResetAt: time.Now().Add(time.Hour)},
	}, nil
}

func TestRun_ThreeRecordSegment(t *testing.T) {
	st := &fakeStorage{}
	src := &searchOnce{}
	sl := &kit.Sleeper{}
	f := fetch.New(src, governor.New(governor.Config{}), fetch.Options{PageDelay: 2 * time.Second}).WithSleep(sl.Sleep)
	s, tx := newSvc(t, makeSegments(1), f, st, Config{})

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Empty(t, sl.Calls())
	assert.Equal(t, 1, tx.calls)
	require.Len(t, st.upserts, 1)
	assert.Len(t, st.upserts[0].rows, 3)
	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 3, res.Written)
	assert.Equal(t, 1, res.Pages)
}

func TestStats_Summary(t *testing.T) {
	r := &fakeReader{count: 4, top: []domain.Row{{RepoID: 1}}, runs: []domain.RunSummary{{RunID: "r"}}}
	st := NewStats(&fakeTx{}, repokit.BindFunc[domain.ReadRepo](func(repokit.Queryer) domain.ReadRepo { return r }))

	got, err := st.Summary(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Repositories)
	assert.Len(t, got.Top, 1)
	assert.Nil(t, got.Runs)
	assert.Equal(t, 5, r.topN)

	r.err = errors.New("down")
	_, err = st.Summary(context.Background(), 5, 5)
	assert.Error(t, err)
}

type fakeReader struct {
	count int64
	top   []domain.Row
	runs  []domain.RunSummary
	topN  int
	err   error
}

func (f *fakeReader) CountRepositories(context.Context) (int64, error) { return f.count, f.err }
func (f *fakeReader) TopRepositories(_ context.Context, n int) ([]domain.Row, error) {
	f.topN = n
	return f.top, nil
}
func (f *fakeReader) RecentRuns(context.Context, int) ([]domain.RunSummary, error) {
	return f.runs, nil
}
