package github

import "context"

const viewerQuery = `query { viewer { login } rateLimit { limit cost remaining resetAt } }`

// ViewerData is the payload of the viewer query
type ViewerData struct {
	Viewer *struct {
		Login string `json:"login"`
	} `json:"viewer"`
	RateLimit *RateLimit `json:"rateLimit"`
}

// Whoami verifies the credential by asking who it belongs to.
// A rejected token surfaces as ErrorCodeUnauthorized without retries
func (c *Client) Whoami(ctx context.Context) (login string, rl *RateLimit, err error) {
	res, err := do(ctx, c, "viewer", viewerQuery, nil, func(d *ViewerData) bool { return d.Viewer != nil })
	if err != nil {
		return "", nil, err
	}
	if res.Data == nil || res.Data.Viewer == nil {
		return "", nil, nil
	}
	return res.Data.Viewer.Login, res.Data.RateLimit, nil
}
