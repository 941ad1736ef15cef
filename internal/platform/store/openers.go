package store

import (
	"context"
	"database/sql"
	"time"

	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/platform/store/pg"
	"repocrawl/internal/platform/store/sqlite"

	"github.com/cenkalti/backoff/v4"
)

// openPG opens pg, pings it with backoff, and wraps it with our adapter
func openPG(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 1
	}
	p, err := pg.Open(ctx, pg.Config{URL: cfg.URL, MaxConns: maxConns}, nil)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "postgres config")
	}

	a := newPGAdapter(p, s.tracing(DialectPostgres, cfg))
	if err := pingWithBackoff(ctx, cfg, s, a.pingPool); err != nil {
		p.Close()
		return nil, err
	}
	return a, nil
}

// openSQLite opens the file and wraps it with our adapter
func openSQLite(ctx context.Context, cfg Config, s *Store) (TxRunner, error) {
	var db *sql.DB
	err := pingWithBackoff(ctx, cfg, s, func(c context.Context) error {
		var oerr error
		db, oerr = sqlite.Open(c, sqlite.Config{URL: cfg.URL})
		return oerr
	})
	if err != nil {
		return nil, err
	}
	return newSQLAdapter(db, s.tracing(DialectSQLite, cfg)), nil
}

// pingWithBackoff retries ping with exponential backoff until it answers or the retry budget runs out
func pingWithBackoff(ctx context.Context, cfg Config, s *Store, ping func(context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 150 * time.Millisecond
	eb.MaxInterval = 2 * time.Second
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(cfg.retries()-1)), ctx)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		pctx, cancel := context.WithTimeout(ctx, cfg.pingTimeout())
		defer cancel()
		return ping(pctx)
	}, b, func(err error, wait time.Duration) {
		s.Log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("database ping failed")
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "database unreachable after %d attempts", attempt)
	}
	return nil
}

func (s *Store) tracing(d Dialect, cfg Config) tracing {
	t := tracing{dialect: d, slowUS: int64(cfg.SlowQueryMs) * 1000}
	if cfg.LogSQL {
		t.tracer = Tracer(s.Log)
	}
	return t
}
