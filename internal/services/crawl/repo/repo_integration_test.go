//go:build integration_pg

package repo

import (
	"context"
	"io"
	"testing"
	"time"

	"repocrawl/internal/modkit/repokit"
	"repocrawl/internal/platform/store"
	"repocrawl/internal/platform/store/pgtest"
	"repocrawl/internal/services/crawl/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPG_UpsertIdempotentAndLedger(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, store.Config{URL: pgtest.Start(t)}, store.WithLogger(zerolog.New(io.Discard)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(ctx) })
	require.NoError(t, NewSchema(st.DB, st.Dialect).Migrate(ctx))
	require.NoError(t, NewSchema(st.DB, st.Dialect).Migrate(ctx))

	b := NewPG()
	page := []domain.Row{row(1, 10, t0), row(2, 20, t0), row(2, 21, t0)}
	apply := func(rows []domain.Row, refresh bool) int {
		var n int
		require.NoError(t, st.DB.Tx(ctx, func(q repokit.Queryer) error {
			w, err := b.Storage().Bind(q).UpsertRepositories(ctx, rows, refresh)
			n = w
			return err
		}))
		return n
	}

	assert.Equal(t, 2, apply(page, false))
	apply(page, true)
	assert.Equal(t, 0, apply([]domain.Row{row(1, 1, t0.Add(-time.Hour))}, false))

	rd := b.Reader().Bind(st.DB)
	n, err := rd.CountRepositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	top, err := rd.TopRepositories(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 21, top[0].Stars)
	assert.True(t, top[0].FetchedAt.Equal(t0))

	w := b.Storage().Bind(st.DB)
	seg := domain.Segment{Index: 4, Query: "q"}
	require.NoError(t, w.StartSegment(ctx, "run-pg", seg, t0))
	require.NoError(t, w.FinishSegment(ctx, "run-pg", domain.SegmentReport{
		Segment: seg, Status: domain.StatusOK, Pages: 1, Records: 3, Written: 3, Finished: t0.Add(time.Second),
	}))
	runs, err := rd.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].OK)
	assert.Equal(t, 3, runs[0].Written)
}
