package guardrails

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithSegment_ZeroInheritsParent(t *testing.T) {
	ctx, cancel := WithSegment(context.Background(), Timeouts{})
	defer cancel()
	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("zero budget should not add a deadline")
	}
	cancel()
	if ctx.Err() == nil {
		t.Fatalf("child should be cancelable")
	}
}

func TestForDB_NeverExtendsParent(t *testing.T) {
	parent, pc := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer pc()
	ctx, cancel := ForDB(parent, Timeouts{DB: time.Hour})
	defer cancel()
	dl, ok := ctx.Deadline()
	pdl, _ := parent.Deadline()
	if !ok || dl.After(pdl) {
		t.Fatalf("child deadline %v exceeds parent %v", dl, pdl)
	}
}

func TestWithSegment_Applies(t *testing.T) {
	ctx, cancel := WithSegment(context.Background(), Timeouts{Segment: time.Minute})
	defer cancel()
	if rem := Remaining(ctx); rem <= 0 || rem > time.Minute {
		t.Fatalf("remaining = %v", rem)
	}
}

func TestRemaining_NoDeadline(t *testing.T) {
	if Remaining(context.Background()) != 0 {
		t.Fatalf("no deadline should report zero")
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep on canceled ctx = %v", err)
	}
	if err := Sleep(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("zero sleep should still report cancellation, got %v", err)
	}
}
