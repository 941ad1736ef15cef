// Package segments partitions the repository search space into bounded queries
package segments

import (
	"strings"
	"time"

	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/services/crawl/domain"
)

// Strategy names accepted by New
const (
	StrategyDateRange = "daterange"
	StrategyStatic    = "static"
	StrategyStarBands = "starbands"
)

// DefaultQueries are the star-range queries used when the static strategy gets no list
var DefaultQueries = []string{
	"stars:>10000 sort:stars-desc",
	"stars:5000..9999 sort:stars-desc",
}

// Options selects and configures a strategy
type Options struct {
	Strategy    string
	Field       string
	From        time.Time
	To          time.Time
	Granularity string
	Filter      string
	Sort        string
	Queries     []string
	Bands       []int
}

// New builds the strategy named by o.Strategy
func New(o Options) (domain.Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(o.Strategy)) {
	case "", StrategyDateRange:
		return DateRange{
			Field:       o.Field,
			From:        o.From,
			To:          o.To,
			Granularity: o.Granularity,
			Filter:      o.Filter,
			Sort:        o.Sort,
		}, nil
	case StrategyStatic:
		return Static{Queries: o.Queries}, nil
	case StrategyStarBands:
		return StarBands{Bounds: o.Bands, Filter: o.Filter, Sort: o.Sort}, nil
	default:
		return nil, perr.InvalidArgf("unknown segment strategy %q", o.Strategy)
	}
}

// Slice drops segments before index from; the rest keep their original indexes
func Slice(segs []domain.Segment, from int) []domain.Segment {
	if from <= 0 {
		return segs
	}
	out := make([]domain.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Index >= from {
			out = append(out, s)
		}
	}
	return out
}

// join builds a search query from non-empty parts
func join(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func sortTerm(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "sort:" + strings.TrimPrefix(s, "sort:")
}
