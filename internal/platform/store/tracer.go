package store

import (
	"context"
	"strings"
	"time"

	"repocrawl/internal/platform/logger"

	"github.com/rs/zerolog"
)

// QueryEvent describes one executed statement
type QueryEvent struct {
	Dialect   Dialect
	SQL       string
	Args      any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives an event per statement
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// Tracer returns a tracer that prints every statement regardless of the root level
func Tracer(root logger.Logger) QueryTracer {
	ll := root.Level(zerolog.DebugLevel).With().Str("component", "sql").Logger()
	return &zlTracer{log: ll}
}

type zlTracer struct{ log logger.Logger }

func (z *zlTracer) OnQuery(_ context.Context, ev QueryEvent) {
	evt := z.log.Debug()
	if ev.Slow {
		evt = z.log.Warn()
	}
	evt.Str("dialect", string(ev.Dialect)).
		Float64("elapsed_ms", float64(ev.ElapsedUS)/1000.0).
		Bool("slow", ev.Slow).
		Str("sql", compact(ev.SQL)).
		Int("args", argCount(ev.Args)).
		Err(ev.Err).
		Msg("sql query")
}

// tracing is embedded by adapters so statements outside and inside a tx trace alike
type tracing struct {
	dialect Dialect
	tracer  QueryTracer
	slowUS  int64
}

func (t tracing) emit(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if t.tracer == nil {
		return
	}
	elapsed := time.Since(start).Microseconds()
	t.tracer.OnQuery(ctx, QueryEvent{
		Dialect:   t.dialect,
		SQL:       sql,
		Args:      args,
		ElapsedUS: elapsed,
		Err:       err,
		Slow:      t.slowUS > 0 && elapsed >= t.slowUS,
	})
}

// argCount keeps upsert payloads out of the log line
func argCount(a any) int {
	if xs, ok := a.([]any); ok {
		return len(xs)
	}
	return 0
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
