package segments

import (
	"strconv"
	"strings"

	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/services/crawl/domain"
)

// Static emits one segment per configured query
type Static struct {
	Queries []string
}

// Name implements domain.Strategy
func (Static) Name() string { return StrategyStatic }

// Segments implements domain.Strategy
func (s Static) Segments() ([]domain.Segment, error) {
	var out []domain.Segment
	for _, q := range s.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		out = append(out, domain.Segment{Index: len(out), Label: q, Query: q})
	}
	if len(out) == 0 {
		return nil, perr.InvalidArgf("static strategy needs at least one query")
	}
	return out, nil
}

// StarBands splits by stargazer count. Bounds b0<b1<...<bn produce
// stars:>=bn first, then stars:b(n-1)..bn-1 down to stars:b0..b1-1
type StarBands struct {
	Bounds []int
	Filter string
	Sort   string
}

// Name implements domain.Strategy
func (StarBands) Name() string { return StrategyStarBands }

// Segments implements domain.Strategy
func (s StarBands) Segments() ([]domain.Segment, error) {
	if len(s.Bounds) == 0 {
		return nil, perr.InvalidArgf("star bands need at least one bound")
	}
	for i, b := range s.Bounds {
		if b < 0 {
			return nil, perr.InvalidArgf("star bound %d is negative", b)
		}
		if i > 0 && b <= s.Bounds[i-1] {
			return nil, perr.InvalidArgf("star bounds must be strictly ascending")
		}
	}

	n := len(s.Bounds)
	out := make([]domain.Segment, 0, n)
	add := func(label string) {
		out = append(out, domain.Segment{
			Index: len(out),
			Label: label,
			Query: join(label, s.Filter, sortTerm(s.Sort)),
		})
	}
	add("stars:>=" + strconv.Itoa(s.Bounds[n-1]))
	for i := n - 2; i >= 0; i-- {
		add("stars:" + strconv.Itoa(s.Bounds[i]) + ".." + strconv.Itoa(s.Bounds[i+1]-1))
	}
	return out, nil
}
