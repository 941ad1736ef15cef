// Package ingest adapts the GitHub GraphQL client to the crawl domain
package ingest

import (
	"context"

	"repocrawl/internal/adapters/ingest/github"
	"repocrawl/internal/platform/logger"
	xstrings "repocrawl/internal/platform/strings"
	"repocrawl/internal/services/crawl/domain"
	"repocrawl/internal/services/crawl/governor"
)

// Client is the slice of the GitHub client the searcher needs
type Client interface {
	Search(ctx context.Context, r github.SearchRequest) (*github.Response[github.SearchData], error)
}

// Searcher implements domain.Searcher over GitHub GraphQL search
type Searcher struct {
	c   Client
	log logger.Logger
}

// NewSearcher wraps c
func NewSearcher(c Client) *Searcher {
	return &Searcher{c: c, log: *logger.Named("ingest")}
}

// Search implements domain.Searcher
func (s *Searcher) Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResult, error) {
	res, err := s.c.Search(ctx, github.SearchRequest{Query: req.Query, First: req.First, After: req.After})
	if err != nil {
		return nil, err
	}
	out := &domain.SearchResult{}
	if res == nil || res.Data == nil {
		return out, nil
	}
	if rl := res.Data.RateLimit; rl != nil {
		reset, ok := governor.ParseResetAt(rl.ResetAt)
		if !ok && rl.ResetAt != "" {
			s.log.Debug().Str("reset_at", rl.ResetAt).Msg("unparseable rate limit reset")
		}
		out.RateLimit = &domain.RateLimit{
			Limit:     rl.Limit,
			Cost:      rl.Cost,
			Remaining: rl.Remaining,
			ResetAt:   reset,
		}
	}

	sr := res.Data.Search
	if sr == nil {
		return out, nil
	}
	out.Found = true
	out.Total = sr.RepositoryCount
	out.HasNext = sr.PageInfo.HasNextPage
	if sr.PageInfo.EndCursor != nil {
		out.EndCursor = *sr.PageInfo.EndCursor
	}
	out.Repos = make([]domain.Repository, 0, len(sr.Nodes))
	for _, raw := range sr.Nodes {
		n, err := github.DecodeNode(raw)
		if err != nil {
			s.log.Warn().Err(err).Msg("skipping undecodable search node")
			continue
		}
		// non-repository fragments decode to an empty node
		if n.DatabaseID == 0 {
			continue
		}
		out.Repos = append(out.Repos, toRepository(n, raw))
	}
	return out, nil
}

func toRepository(n github.RepositoryNode, raw []byte) domain.Repository {
	r := domain.Repository{
		ID:       n.DatabaseID,
		FullName: n.NameWithOwner,
		Name:     n.Name,
		Owner:    n.Owner.Login,
		URL:      n.URL,
		Stars:    n.StargazerCount,
		Raw:      append([]byte(nil), raw...),
	}
	if n.PrimaryLanguage != nil {
		r.Language = xstrings.Ptr(n.PrimaryLanguage.Name)
	}
	return r
}
