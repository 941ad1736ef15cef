package pg

import (
	"context"
	"errors"
	"testing"

	kit "repocrawl/internal/platform/testkit"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestOpen_BadURL(t *testing.T) {
	if _, err := Open(context.Background(), Config{URL: "://bad"}, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestOpen_AppliesMaxConnsAndMutator(t *testing.T) {
	var seen *pgxpool.Config
	boom := errors.New("stop before dialing")
	kit.Swap(t, &newPool, func(_ context.Context, c *pgxpool.Config) (*pgxpool.Pool, error) {
		seen = c
		return nil, boom
	})

	mutated := false
	_, err := Open(context.Background(), Config{URL: "postgres://u:p@localhost:5432/db", MaxConns: 1},
		func(*pgxpool.Config) { mutated = true })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want seam error", err)
	}
	if seen == nil || seen.MaxConns != 1 || !mutated {
		t.Fatalf("config not applied: %+v mutated=%v", seen, mutated)
	}
}

func TestClose_NilSafe(t *testing.T) {
	var p *PG
	p.Close()
	(&PG{}).Close()
}
