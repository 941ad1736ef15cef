package service

import (
	"context"
	"encoding/json"
	"time"

	"repocrawl/internal/modkit/repokit"
	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/platform/logger"
	"repocrawl/internal/services/crawl/domain"
	"repocrawl/internal/services/crawl/guardrails"
)

// ToRows projects a page onto storage rows stamped with the page fetch time
func ToRows(p domain.Page) []domain.Row {
	rows := make([]domain.Row, 0, len(p.Repos))
	for _, r := range p.Repos {
		meta := []byte(r.Raw)
		if len(meta) == 0 {
			meta, _ = json.Marshal(map[string]any{
				"databaseId":     r.ID,
				"nameWithOwner":  r.FullName,
				"stargazerCount": r.Stars,
			})
		}
		rows = append(rows, domain.Row{
			RepoID:     r.ID,
			FullName:   r.FullName,
			OwnerLogin: r.Owner,
			Name:       r.Name,
			HTMLURL:    r.URL,
			Stars:      r.Stars,
			Language:   r.Language,
			FetchedAt:  p.FetchedAt,
			Metadata:   meta,
		})
	}
	return rows
}

// apply writes one page in its own transaction, retrying retryable db errors
func (s *Service) apply(ctx context.Context, p domain.Page) (int, error) {
	rows := ToRows(p)
	if len(rows) == 0 {
		return 0, nil
	}

	attempts := max(s.Cfg.SinkRetries, 1)
	base := s.Cfg.SinkRetryBase
	if base <= 0 {
		base = 250 * time.Millisecond
	}

	var last error
	for i := range attempts {
		var written int
		dbCtx, cancel := guardrails.ForDB(ctx, s.timeouts())
		err := s.DB.Tx(dbCtx, func(q repokit.Queryer) error {
			n, err := s.Binder.Bind(q).UpsertRepositories(dbCtx, rows, s.Cfg.RefreshSnapshot)
			written = n
			return err
		})
		cancel()
		if err == nil {
			return written, nil
		}
		last = err
		if !perr.Retryable(err) || i == attempts-1 {
			break
		}

		d := min(base<<i, 5*time.Second)
		logger.C(ctx).Warn().Err(err).Int("attempt", i+1).Dur("retry_in", d).Msg("crawl: page write failed, retrying")
		if se := s.sleep(ctx, d); se != nil {
			return 0, se
		}
	}
	return 0, perr.Wrapf(last, perr.CodeOf(last), "write page %d of segment %d", p.Number, p.Segment.Index)
}
