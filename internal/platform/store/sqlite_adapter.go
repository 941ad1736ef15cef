package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"
)

// sqlAdapter wraps a database/sql handle (SQLite) and implements TxRunner.
// Statements are written with $N placeholders and rebound to ?N here so repos share SQL across dialects
type sqlAdapter struct {
	db *sql.DB
	tracing
}

func newSQLAdapter(db *sql.DB, t tracing) *sqlAdapter { return &sqlAdapter{db: db, tracing: t} }

// sqlConn is the surface shared by *sql.DB and *sql.Tx
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (a *sqlAdapter) Ping(ctx context.Context) error {
	if a == nil || a.db == nil {
		return errors.New("sqlite: nil adapter")
	}
	return a.db.PingContext(ctx)
}

func (a *sqlAdapter) Close() error { return a.db.Close() }

func (a *sqlAdapter) Exec(ctx context.Context, q string, args ...any) (CommandTag, error) {
	return sqlExec(ctx, a.db, a.tracing, q, args)
}

func (a *sqlAdapter) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return sqlQuery(ctx, a.db, a.tracing, q, args)
}

func (a *sqlAdapter) QueryRow(ctx context.Context, q string, args ...any) Row {
	return sqlQueryRow(ctx, a.db, a.tracing, q, args)
}

func (a *sqlAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(sqlTx{tx: tx, tracing: a.tracing}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type sqlTx struct {
	tx *sql.Tx
	tracing
}

func (t sqlTx) Exec(ctx context.Context, q string, args ...any) (CommandTag, error) {
	return sqlExec(ctx, t.tx, t.tracing, q, args)
}

func (t sqlTx) Query(ctx context.Context, q string, args ...any) (Rows, error) {
	return sqlQuery(ctx, t.tx, t.tracing, q, args)
}

func (t sqlTx) QueryRow(ctx context.Context, q string, args ...any) Row {
	return sqlQueryRow(ctx, t.tx, t.tracing, q, args)
}

func sqlExec(ctx context.Context, c sqlConn, tr tracing, q string, args []any) (CommandTag, error) {
	start := time.Now()
	q = Rebind(q)
	res, err := c.ExecContext(ctx, q, args...)
	tr.emit(ctx, q, args, start, err)
	if err != nil {
		return sqlTag{}, err
	}
	n, _ := res.RowsAffected()
	return sqlTag{n: n}, nil
}

func sqlQuery(ctx context.Context, c sqlConn, tr tracing, q string, args []any) (Rows, error) {
	start := time.Now()
	q = Rebind(q)
	rs, err := c.QueryContext(ctx, q, args...)
	tr.emit(ctx, q, args, start, err)
	if err != nil {
		return nil, err
	}
	return &sqlRows{r: rs}, nil
}

func sqlQueryRow(ctx context.Context, c sqlConn, tr tracing, q string, args []any) Row {
	start := time.Now()
	q = Rebind(q)
	r := c.QueryRowContext(ctx, q, args...)
	return sqlRow{r: r, after: func(err error) { tr.emit(ctx, q, args, start, err) }}
}

type sqlRow struct {
	r     *sql.Row
	after func(error)
}

func (x sqlRow) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type sqlRows struct {
	r    *sql.Rows
	cols []string
}

func (x *sqlRows) Next() bool            { return x.r.Next() }
func (x *sqlRows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x *sqlRows) Err() error            { return x.r.Err() }
func (x *sqlRows) Close()                { _ = x.r.Close() }
func (x *sqlRows) Columns() []string {
	if x.cols == nil {
		x.cols, _ = x.r.Columns()
	}
	return x.cols
}

type sqlTag struct{ n int64 }

func (t sqlTag) String() string      { return "ROWS " + strconv.FormatInt(t.n, 10) }
func (t sqlTag) RowsAffected() int64 { return t.n }

// Rebind rewrites $N placeholders to SQLite's ?N form, leaving quoted text untouched
func Rebind(q string) string {
	if !strings.Contains(q, "$") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q))
	inQuote := false
	for i := 0; i < len(q); i++ {
		ch := q[i]
		switch {
		case ch == '\'':
			inQuote = !inQuote
			b.WriteByte(ch)
		case ch == '$' && !inQuote && i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9':
			b.WriteByte('?')
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}
