// Package repo provides SQL access for crawl writes, the segment ledger and stats
package repo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"repocrawl/internal/modkit/repokit"
	"repocrawl/internal/platform/store"
	"repocrawl/internal/services/crawl/domain"
)

// sqliteTimeLayout is fixed width so text order matches time order
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// maxRowsPerStatement keeps multi-row upserts well under parameter limits
const maxRowsPerStatement = 500

const upsertCols = 9

type (
	// Binder binds both the write and read sides for one dialect
	Binder struct{ d dialect }

	dialect struct {
		name store.Dialect
		ts   func(time.Time) any
	}

	queries struct {
		q repokit.Queryer
		d dialect
	}
)

var (
	pgDialect = dialect{
		name: store.DialectPostgres,
		ts:   func(t time.Time) any { return t.UTC() },
	}
	sqliteDialect = dialect{
		name: store.DialectSQLite,
		ts:   func(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) },
	}
)

// NewPG returns a Postgres binder
func NewPG() Binder { return Binder{d: pgDialect} }

// NewSQLite returns a SQLite binder
func NewSQLite() Binder { return Binder{d: sqliteDialect} }

// For returns the binder matching a store dialect
func For(d store.Dialect) (Binder, error) {
	switch d {
	case store.DialectPostgres:
		return NewPG(), nil
	case store.DialectSQLite:
		return NewSQLite(), nil
	default:
		return Binder{}, fmt.Errorf("crawl repo: unsupported dialect %q", d)
	}
}

// Storage adapts b to repokit.Binder for the write side
func (b Binder) Storage() repokit.Binder[domain.StorageRepo] {
	return repokit.BindFunc[domain.StorageRepo](func(q repokit.Queryer) domain.StorageRepo { return b.bind(q) })
}

// Reader adapts b to repokit.Binder for the read side
func (b Binder) Reader() repokit.Binder[domain.ReadRepo] {
	return repokit.BindFunc[domain.ReadRepo](func(q repokit.Queryer) domain.ReadRepo { return b.bind(q) })
}

// Dialect names the backend this binder writes for
func (b Binder) Dialect() store.Dialect { return b.d.name }

func (b Binder) bind(q repokit.Queryer) *queries { return &queries{q: q, d: b.d} }

// UpsertRepositories inserts new rows and refreshes existing ones keyed by repo_id.
// Stars and fetch time always refresh; identity fields and the snapshot only when
// refreshSnapshot is set. An older observation never overwrites a newer one
func (r *queries) UpsertRepositories(ctx context.Context, rows []domain.Row, refreshSnapshot bool) (int, error) {
	rows = dedupe(rows)
	written := 0
	for start := 0; start < len(rows); start += maxRowsPerStatement {
		chunk := rows[start:min(start+maxRowsPerStatement, len(rows))]
		args := make([]any, 0, len(chunk)*upsertCols)
		for _, row := range chunk {
			meta := string(row.Metadata)
			if meta == "" {
				meta = "{}"
			}
			args = append(args,
				row.RepoID, row.FullName, row.OwnerLogin, row.Name, row.HTMLURL,
				row.Stars, row.Language, r.d.ts(row.FetchedAt), meta,
			)
		}
		tag, err := r.q.Exec(ctx, upsertSQL(len(chunk), refreshSnapshot), args...)
		if err != nil {
			return written, fmt.Errorf("upsert %d repositories: %w", len(chunk), err)
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func upsertSQL(n int, refreshSnapshot bool) string {
	var b strings.Builder
	b.WriteString(`INSERT INTO repositories (
		repo_id, full_name, owner_login, name, html_url,
		stargazers_count, primary_language, last_fetched_at, metadata
	) VALUES `)
	for i := range n {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range upsertCols {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(i*upsertCols + j + 1))
		}
		b.WriteByte(')')
	}
	b.WriteString(`
	ON CONFLICT (repo_id) DO UPDATE SET
		stargazers_count = excluded.stargazers_count,
		last_fetched_at = excluded.last_fetched_at`)
	if refreshSnapshot {
		b.WriteString(`,
		full_name = excluded.full_name,
		owner_login = excluded.owner_login,
		name = excluded.name,
		html_url = excluded.html_url,
		primary_language = excluded.primary_language,
		metadata = excluded.metadata`)
	}
	b.WriteString(`
	WHERE repositories.last_fetched_at <= excluded.last_fetched_at`)
	return b.String()
}

// dedupe collapses rows sharing an id, keeping the first position and the last value
func dedupe(rows []domain.Row) []domain.Row {
	seen := make(map[int64]int, len(rows))
	out := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		if i, ok := seen[row.RepoID]; ok {
			out[i] = row
			continue
		}
		seen[row.RepoID] = len(out)
		out = append(out, row)
	}
	return out
}

// StartSegment marks a segment as running for a run (idempotent)
func (r *queries) StartSegment(ctx context.Context, runID string, seg domain.Segment, at time.Time) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO crawl_segments (run_id, seg_index, query, status, started_at)
		VALUES ($1, $2, $3, 'running', $4)
		ON CONFLICT (run_id, seg_index) DO UPDATE
		SET status = 'running', started_at = excluded.started_at, error = NULL, finished_at = NULL
	`, runID, seg.Index, seg.Query, r.d.ts(at))
	return err
}

// FinishSegment records the outcome of a segment
func (r *queries) FinishSegment(ctx context.Context, runID string, rep domain.SegmentReport) error {
	_, err := r.q.Exec(ctx, `
		UPDATE crawl_segments SET
			status = $3,
			pages = $4,
			records = $5,
			written = $6,
			error = NULLIF($7, ''),
			finished_at = $8
		WHERE run_id = $1 AND seg_index = $2
	`,
		runID, rep.Segment.Index, string(rep.Status), rep.Pages, rep.Records, rep.Written,
		rep.ErrText(), r.d.ts(rep.Finished),
	)
	return err
}
