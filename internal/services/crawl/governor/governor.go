// Package governor decides when the crawler must pause for the rate-limit budget
package governor

import (
	"strings"
	"sync"
	"time"
)

// Config tunes the throttle decision. Zero values take the defaults below
type Config struct {
	// Margin is the remaining budget below which calls pause; default 100
	Margin int

	// Padding is added on top of the time until reset; default 5s
	Padding time.Duration

	// FallbackWait is used when the reset time is unknown; default 60s
	FallbackWait time.Duration

	// MaxWait caps any single pause; default 65m, one hourly budget window plus slack.
	// A reset further out than MaxWait yields a pause shorter than reset+Padding,
	// trading an early wake (and possibly another throttle) for never sleeping on a bogus reset
	MaxWait time.Duration
}

const (
	defaultMargin   = 100
	defaultPadding  = 5 * time.Second
	defaultFallback = 60 * time.Second
	defaultMaxWait  = 65 * time.Minute
	minWait         = time.Second
)

// Governor holds the latest observed budget. Safe for concurrent use
type Governor struct {
	mu        sync.Mutex
	cfg       Config
	seen      bool
	remaining int
	resetAt   time.Time
	now       func() time.Time
}

// New returns a Governor with defaults applied
func New(cfg Config) *Governor {
	if cfg.Margin <= 0 {
		cfg.Margin = defaultMargin
	}
	if cfg.Padding < 0 {
		cfg.Padding = 0
	} else if cfg.Padding == 0 {
		cfg.Padding = defaultPadding
	}
	if cfg.FallbackWait <= 0 {
		cfg.FallbackWait = defaultFallback
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	return &Governor{cfg: cfg, now: time.Now}
}

// Config returns the effective configuration
func (g *Governor) Config() Config { return g.cfg }

// Observe records the budget reported by the latest response.
// A zero resetAt means the backend did not say when the window resets
func (g *Governor) Observe(remaining int, resetAt time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = true
	g.remaining = max(remaining, 0)
	g.resetAt = resetAt
}

// ShouldThrottle reports how long to pause before the next call.
// When it returns true the duration is always positive and never above MaxWait
func (g *Governor) ShouldThrottle() (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.seen || g.remaining >= g.cfg.Margin {
		return 0, false
	}

	wait := g.cfg.FallbackWait
	if !g.resetAt.IsZero() {
		wait = max(g.resetAt.Sub(g.now()), 0) + g.cfg.Padding
	}
	if wait < minWait {
		wait = minWait
	}
	return min(wait, g.cfg.MaxWait), true
}

// Snapshot returns the last observed budget; ok is false before the first Observe
func (g *Governor) Snapshot() (remaining int, resetAt time.Time, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining, g.resetAt, g.seen
}

// ParseResetAt parses the backend's resetAt timestamp; ok is false when it is empty or malformed
func ParseResetAt(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}
