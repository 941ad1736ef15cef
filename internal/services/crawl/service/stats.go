package service

import (
	"context"

	"repocrawl/internal/modkit/repokit"
	"repocrawl/internal/services/crawl/domain"
)

// Stats implements domain.StatsPort
type Stats struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.ReadRepo]
}

// NewStats builds the stats reader
func NewStats(db repokit.TxRunner, b repokit.Binder[domain.ReadRepo]) *Stats {
	return &Stats{DB: db, Binder: b}
}

// Summary returns the stored row count, the top repositories by stars and recent runs.
// All three reads share one transaction so they see the same snapshot
func (s *Stats) Summary(ctx context.Context, top, runs int) (domain.Stats, error) {
	var out domain.Stats
	err := s.DB.Tx(ctx, func(q repokit.Queryer) error {
		r := s.Binder.Bind(q)
		var err error
		if out.Repositories, err = r.CountRepositories(ctx); err != nil {
			return err
		}
		if top > 0 {
			if out.Top, err = r.TopRepositories(ctx, top); err != nil {
				return err
			}
		}
		if runs > 0 {
			out.Runs, err = r.RecentRuns(ctx, runs)
		}
		return err
	})
	if err != nil {
		return domain.Stats{}, err
	}
	return out, nil
}
