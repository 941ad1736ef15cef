package repo

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"repocrawl/internal/modkit/repokit"
	"repocrawl/internal/platform/store"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Statements returns the DDL for a dialect split into single statements
func Statements(d store.Dialect) ([]string, error) {
	var file string
	switch d {
	case store.DialectPostgres:
		file = "schema/postgres.sql"
	case store.DialectSQLite:
		file = "schema/sqlite.sql"
	default:
		return nil, fmt.Errorf("crawl repo: no schema for dialect %q", d)
	}
	b, err := schemaFS.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var out []string
	for stmt := range strings.SplitSeq(string(b), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// Schema implements domain.SchemaPort
type Schema struct {
	db repokit.TxRunner
	d  store.Dialect
}

// NewSchema binds the migrator to a store
func NewSchema(db repokit.TxRunner, d store.Dialect) *Schema { return &Schema{db: db, d: d} }

// Migrate applies the schema in one transaction; statements are idempotent
func (s *Schema) Migrate(ctx context.Context) error {
	stmts, err := Statements(s.d)
	if err != nil {
		return err
	}
	return s.db.Tx(ctx, func(q repokit.Queryer) error {
		for _, stmt := range stmts {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migrate %s: %w", firstLine(stmt), err)
			}
		}
		return nil
	})
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}
