package segments

import (
	"time"

	"repocrawl/internal/platform/config"
	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/services/crawl/domain"
)

// Granularities accepted by DateRange
const (
	Day   = "day"
	Week  = "week"
	Month = "month"
	Year  = "year"
)

// DateRange splits [From, To) into calendar partitions over a date qualifier.
// Month and year partitions align to calendar boundaries after the first one
type DateRange struct {
	Field       string
	From        time.Time
	To          time.Time
	Granularity string
	Filter      string
	Sort        string
}

// Name implements domain.Strategy
func (DateRange) Name() string { return StrategyDateRange }

// Segments implements domain.Strategy
func (d DateRange) Segments() ([]domain.Segment, error) {
	from := day(d.From)
	to := day(d.To)
	if d.From.IsZero() || d.To.IsZero() {
		return nil, perr.InvalidArgf("date range needs both a start and an end")
	}
	if !to.After(from) {
		return nil, perr.InvalidArgf("date range end %s is not after start %s",
			to.Format(config.DateLayout), from.Format(config.DateLayout))
	}
	step, err := stepper(d.Granularity)
	if err != nil {
		return nil, err
	}
	field := d.Field
	if field == "" {
		field = "created"
	}

	var out []domain.Segment
	for cur := from; cur.Before(to); {
		next := step(cur)
		if next.After(to) {
			next = to
		}
		last := next.AddDate(0, 0, -1)
		label := cur.Format(config.DateLayout) + ".." + last.Format(config.DateLayout)
		out = append(out, domain.Segment{
			Index: len(out),
			Label: label,
			Query: join(field+":"+label, d.Filter, sortTerm(d.Sort)),
			Start: cur,
			End:   next,
		})
		cur = next
	}
	return out, nil
}

func stepper(g string) (func(time.Time) time.Time, error) {
	switch g {
	case Day:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }, nil
	case Week:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }, nil
	case "", Month:
		return func(t time.Time) time.Time {
			return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		}, nil
	case Year:
		return func(t time.Time) time.Time {
			return time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, time.UTC)
		}, nil
	default:
		return nil, perr.InvalidArgf("unknown granularity %q", g)
	}
}

// day truncates t to its UTC calendar day
func day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
