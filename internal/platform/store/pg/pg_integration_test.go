//go:build integration_pg

package pg

import (
	"context"
	"testing"
	"time"

	"repocrawl/internal/platform/store/pgtest"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestOpen_Integration(t *testing.T) {
	dsn := pgtest.Start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	const appName = "repocrawl-pg-integration"
	WithTestDB(t, dsn, func(pc *pgxpool.Config) {
		if pc.ConnConfig.RuntimeParams == nil {
			pc.ConnConfig.RuntimeParams = map[string]string{}
		}
		pc.ConnConfig.RuntimeParams["application_name"] = appName
	}, func(p *PG) {
		var got string
		if err := p.Pool.QueryRow(ctx, `select current_setting('application_name')`).Scan(&got); err != nil {
			t.Fatalf("query: %v", err)
		}
		if got != appName {
			t.Fatalf("application_name = %q, want %q", got, appName)
		}
		if p.Pool.Config().MaxConns != 1 {
			t.Fatalf("MaxConns = %d, want 1", p.Pool.Config().MaxConns)
		}
	})
}
