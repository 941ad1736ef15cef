// Package sqlite opens a single-connection SQLite database through the modernc driver
package sqlite

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Config configures the database
type Config struct {
	// URL accepts sqlite://path, file:path, a bare path, or :memory:
	URL string

	// BusyTimeoutMs is how long a writer waits on a lock; <=0 means 5000
	BusyTimeoutMs int
}

// DSN turns the configured URL into a modernc DSN with the pragmas the store relies on
func DSN(cfg Config) string {
	raw := strings.TrimSpace(cfg.URL)
	path := raw
	switch {
	case strings.HasPrefix(strings.ToLower(raw), "sqlite://"):
		path = raw[len("sqlite://"):]
	case strings.HasPrefix(strings.ToLower(raw), "file:"):
		path = raw[len("file:"):]
	}

	var query string
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path, query = path[:i], path[i+1:]
	}

	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	v, _ := url.ParseQuery(query)
	v.Add("_pragma", "busy_timeout("+strconv.Itoa(busy)+")")
	v.Add("_pragma", "foreign_keys(1)")
	if path != ":memory:" {
		v.Add("_pragma", "journal_mode(WAL)")
	}
	return "file:" + path + "?" + v.Encode()
}

// Open opens the database and pins it to one connection so writes serialize
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	db, err := sql.Open("sqlite", DSN(cfg))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
