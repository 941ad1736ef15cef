// Package guardrails holds cross cutting safety helpers for the crawler
package guardrails

import (
	"context"
	"time"
)

// Timeouts is an optional budget bundle for a single segment of work.
// Zero values mean no extra timeout at that level
type Timeouts struct {
	// Segment is the overall time budget for draining one segment
	Segment time.Duration

	// DB caps each page write and ledger update
	DB time.Duration
}

// WithSegment returns a context limited by the segment budget without extending any parent deadline
func WithSegment(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.Segment)
}

// ForDB returns a sub context for a db step bounded by DB and any remaining parent budget
func ForDB(parent context.Context, t Timeouts) (context.Context, context.CancelFunc) {
	return withChildTimeout(parent, t.DB)
}

// Remaining returns the time until the deadline on ctx or zero when none is set or already expired
func Remaining(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		d := time.Until(dl)
		if d > 0 {
			return d
		}
	}
	return 0
}

// Sleep blocks for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// withChildTimeout chooses the tighter of the requested duration and any parent remainder.
// When d is zero it returns a simple cancelable child inheriting the parent deadline
func withChildTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(parent)
	}
	if rem := Remaining(parent); rem > 0 && rem < d {
		return context.WithTimeout(parent, rem)
	}
	return context.WithTimeout(parent, d)
}
