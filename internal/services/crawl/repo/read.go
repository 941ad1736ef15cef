package repo

import (
	"context"
	"time"

	"repocrawl/internal/platform/store"
	"repocrawl/internal/services/crawl/domain"
)

// CountRepositories returns the number of stored repositories
func (r *queries) CountRepositories(ctx context.Context) (int64, error) {
	return store.Scalar[int64](ctx, r.q, `SELECT COUNT(*) FROM repositories`)
}

// TopRepositories returns the n most starred repositories
func (r *queries) TopRepositories(ctx context.Context, n int) ([]domain.Row, error) {
	return store.Many(ctx, r.q, scanRow, `
		SELECT repo_id, full_name, owner_login, name, html_url,
		       stargazers_count, primary_language, last_fetched_at
		FROM repositories
		ORDER BY stargazers_count DESC, repo_id
		LIMIT $1
	`, n)
}

// RecentRuns rolls the ledger up per run, newest first
func (r *queries) RecentRuns(ctx context.Context, n int) ([]domain.RunSummary, error) {
	return store.Many(ctx, r.q, scanRun, `
		SELECT run_id,
		       COUNT(*),
		       SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END),
		       COALESCE(SUM(written), 0),
		       MIN(started_at)
		FROM crawl_segments
		GROUP BY run_id
		ORDER BY MIN(started_at) DESC
		LIMIT $1
	`, n)
}

func scanRow(row store.Row) (domain.Row, error) {
	var (
		r  domain.Row
		ts any
	)
	if err := row.Scan(&r.RepoID, &r.FullName, &r.OwnerLogin, &r.Name, &r.HTMLURL,
		&r.Stars, &r.Language, &ts); err != nil {
		return domain.Row{}, err
	}
	r.FetchedAt = asTime(ts)
	return r, nil
}

func scanRun(row store.Row) (domain.RunSummary, error) {
	var (
		s  domain.RunSummary
		ts any
	)
	if err := row.Scan(&s.RunID, &s.Segments, &s.OK, &s.Failed, &s.Written, &ts); err != nil {
		return domain.RunSummary{}, err
	}
	s.StartedAt = asTime(ts)
	return s, nil
}

// asTime reads a timestamp column from either dialect
func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		return parseTS(t)
	case []byte:
		return parseTS(string(t))
	default:
		return time.Time{}
	}
}

func parseTS(s string) time.Time {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
