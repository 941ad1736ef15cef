package github

import (
	"context"
	"encoding/json"
)

const searchQuery = `query($q: String!, $first: Int!, $after: String) {
  rateLimit { limit cost remaining resetAt }
  search(query: $q, type: REPOSITORY, first: $first, after: $after) {
    repositoryCount
    pageInfo { hasNextPage endCursor }
    nodes {
      ... on Repository {
        databaseId
        nameWithOwner
        name
        url
        stargazerCount
        primaryLanguage { name }
        owner { login }
      }
    }
  }
}`

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is the GraphQL envelope: a data payload and/or an error list
type Response[T any] struct {
	Data   *T             `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError is one entry of the errors list
type GraphQLError struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// RateLimit is the rateLimit object GitHub returns with every query
type RateLimit struct {
	Limit     int    `json:"limit"`
	Cost      int    `json:"cost"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"resetAt"`
}

// SearchData is the data payload of the repository search query
type SearchData struct {
	RateLimit *RateLimit `json:"rateLimit"`
	Search    *Search    `json:"search"`
}

// Search is one page of search results; nodes stay raw so they can be stored verbatim
type Search struct {
	RepositoryCount int               `json:"repositoryCount"`
	PageInfo        PageInfo          `json:"pageInfo"`
	Nodes           []json.RawMessage `json:"nodes"`
}

// PageInfo carries the continuation cursor
type PageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

// RepositoryNode is the subset of Repository fields the search selects
type RepositoryNode struct {
	DatabaseID      int64  `json:"databaseId"`
	NameWithOwner   string `json:"nameWithOwner"`
	Name            string `json:"name"`
	URL             string `json:"url"`
	StargazerCount  int    `json:"stargazerCount"`
	PrimaryLanguage *struct {
		Name string `json:"name"`
	} `json:"primaryLanguage"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// DecodeNode parses a raw search node
func DecodeNode(raw json.RawMessage) (RepositoryNode, error) {
	var n RepositoryNode
	err := json.Unmarshal(raw, &n)
	return n, err
}

// SearchRequest is a single search page request
type SearchRequest struct {
	Query string
	First int
	After *string
}

// Search runs one repository search page
func (c *Client) Search(ctx context.Context, r SearchRequest) (*Response[SearchData], error) {
	vars := map[string]any{"q": r.Query, "first": r.First, "after": r.After}
	return do(ctx, c, "search", searchQuery, vars, func(d *SearchData) bool { return d.Search != nil })
}
