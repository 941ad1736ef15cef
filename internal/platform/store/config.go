package store

import (
	"strings"
	"time"

	perr "repocrawl/internal/platform/errors"
)

// Dialect names a supported SQL backend
type Dialect string

const (
	// DialectPostgres is selected by postgres:// and postgresql:// URLs
	DialectPostgres Dialect = "postgres"

	// DialectSQLite is selected by sqlite:// and file: URLs or a bare *.db path
	DialectSQLite Dialect = "sqlite"
)

// Config configures connectivity and tracing for the single relational backend
type Config struct {
	URL         string
	MaxConns    int32
	LogSQL      bool
	SlowQueryMs int

	// ConnectRetries bounds the startup ping loop; <=0 means 6
	ConnectRetries int

	// PingTimeout caps each startup ping; <=0 means 3s
	PingTimeout time.Duration
}

// DialectOf picks the backend for a URL
func DialectOf(url string) (Dialect, error) {
	u := strings.TrimSpace(url)
	l := strings.ToLower(u)
	switch {
	case u == "":
		return "", perr.InvalidArgf("empty database url")
	case strings.HasPrefix(l, "postgres://"), strings.HasPrefix(l, "postgresql://"):
		return DialectPostgres, nil
	case strings.HasPrefix(l, "sqlite://"), strings.HasPrefix(l, "file:"),
		strings.HasSuffix(l, ".db"), strings.HasSuffix(l, ".sqlite"), l == ":memory:":
		return DialectSQLite, nil
	default:
		return "", perr.InvalidArgf("unsupported database url scheme: %q", u)
	}
}

func (c Config) retries() int {
	if c.ConnectRetries <= 0 {
		return 6
	}
	return c.ConnectRetries
}

func (c Config) pingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 3 * time.Second
	}
	return c.PingTimeout
}
