// Package github provides a resilient GitHub GraphQL client for the crawler
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	perr "repocrawl/internal/platform/errors"
	"repocrawl/internal/platform/logger"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	baseURLDefault     = "https://api.github.com/graphql"
	defaultTimeout     = 30 * time.Second
	defaultUA          = "repocrawl"
	defaultMaxAttempts = 5
	defaultRetryBase   = 2 * time.Second
	defaultRetryMax    = 60 * time.Second
	maxBodyBytes       = 8 << 20

	// maxRetryAfter bounds how long a server supplied Retry-After may stretch one retry
	maxRetryAfter = 5 * time.Minute
)

// Options configures the Client
type Options struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration

	// Token is sent as a bearer credential; empty sends no Authorization header
	Token string

	// Retry schedule: MaxAttempts calls in total, delays doubling from RetryBase up to RetryMax
	MaxAttempts int
	RetryBase   time.Duration
	RetryMax    time.Duration

	// RequestsPerSecond paces outgoing calls; <=0 disables pacing
	RequestsPerSecond float64

	// HTTPClient overrides the base client, mostly for tests
	HTTPClient *http.Client
}

// Client is a minimal GitHub GraphQL client with retry and optional pacing
type Client struct {
	http    *http.Client
	opts    Options
	limiter *rate.Limiter
	log     logger.Logger
	now     func() time.Time
	timer   backoff.Timer
}

// NewClient creates a new Client with sane defaults
func NewClient(o Options) *Client {
	if o.BaseURL == "" {
		o.BaseURL = baseURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RetryMax < o.RetryBase {
		o.RetryMax = max(defaultRetryMax, o.RetryBase)
	}

	base := o.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: o.Timeout}
	}
	hc := base
	if o.Token != "" {
		hc = &http.Client{
			Timeout: base.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: o.Token}),
				Base:   base.Transport,
			},
		}
	}

	var lim *rate.Limiter
	if o.RequestsPerSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(o.RequestsPerSecond), 1)
	}

	return &Client{
		http:    hc,
		opts:    o,
		limiter: lim,
		log:     *logger.Named("github"),
		now:     time.Now,
	}
}

// schedule is the exponential retry policy; no jitter so delays never shrink.
// The returned floor lets a Retry-After hint stretch the next delay
func (c *Client) schedule(ctx context.Context) (backoff.BackOff, *retryFloor) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.opts.RetryBase
	eb.MaxInterval = c.opts.RetryMax
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0
	f := &retryFloor{BackOff: backoff.WithMaxRetries(eb, uint64(c.opts.MaxAttempts-1))}
	return backoff.WithContext(f, ctx), f
}

// retryFloor raises the next delay to a one-shot minimum, capped at maxRetryAfter
type retryFloor struct {
	backoff.BackOff
	floor time.Duration
}

func (f *retryFloor) raise(d time.Duration) { f.floor = min(max(f.floor, d), maxRetryAfter) }

func (f *retryFloor) NextBackOff() time.Duration {
	d := f.BackOff.NextBackOff()
	if d != backoff.Stop && f.floor > d {
		d = f.floor
	}
	f.floor = 0
	return d
}

// do posts one GraphQL document with retries. complete reports whether the
// data payload carries what the caller asked for; when it does not and the
// backend sent errors, the call is retried
func do[T any](ctx context.Context, c *Client, op, query string, vars map[string]any, complete func(*T) bool) (*Response[T], error) {
	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "github %s encode request", op)
	}

	var (
		out       *Response[T]
		attempts  int
		permanent bool
	)
	sched, floor := c.schedule(ctx)
	call := func() error {
		attempts++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				permanent = true
				return backoff.Permanent(err)
			}
		}
		res, err := post[T](ctx, c, op, body, attempts)
		if err != nil {
			var pe *backoff.PermanentError
			if errors.As(err, &pe) {
				permanent = true
			}
			var gse *GHStatusError
			if errors.As(err, &gse) && gse.RetryAfter > 0 {
				floor.raise(gse.RetryAfter)
			}
			return err
		}
		if res.Data == nil || !complete(res.Data) {
			if len(res.Errors) > 0 {
				return perr.Newf(perr.ErrorCodeUnavailable, "github %s returned errors: %s", op, res.Errors[0].Message)
			}
		} else if len(res.Errors) > 0 {
			c.log.Warn().Str("op", op).Str("error", res.Errors[0].Message).Int("errors", len(res.Errors)).
				Msg("github graphql partial response")
		}
		out = res
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("op", op).Int("attempt", attempts).Dur("retry_in", wait).Msg("github graphql retrying")
	}

	err = backoff.RetryNotifyWithTimer(call, sched, notify, c.timer)
	switch {
	case err == nil:
		return out, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case permanent:
		return nil, err
	default:
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "github %s retries exhausted after %d attempts", op, attempts)
	}
}

// post performs a single exchange and classifies failures.
// Returned errors wrapped in backoff.Permanent are not retried
func post[T any](ctx context.Context, c *Client, op string, body []byte, attempt int) (*Response[T], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(perr.Wrapf(err, perr.ErrorCodeUnknown, "github new request failed"))
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	start := c.now()
	resp, err := c.http.Do(req)
	lat := c.now().Sub(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "github transport error")
	}

	rem, retryAfter := parseRateHeaders(resp.Header)
	c.log.Debug().
		Str("op", op).
		Int("status", resp.StatusCode).
		Int("attempt", attempt).
		Dur("latency", lat).
		Int("rate_remaining", rem).
		Int("retry_after_s", retryAfter).
		Msg("github http response")

	if resp.StatusCode != http.StatusOK {
		gse := statusError(resp)
		gse.RetryAfter = time.Duration(retryAfter) * time.Second
		switch {
		case IsTransient(gse):
			return nil, perr.Wrapf(gse, perr.ErrorCodeUnavailable, "github transient status %d", gse.Status)
		case IsRateLimited(gse) && (gse.Status == http.StatusTooManyRequests || retryAfter > 0 || rem == 0):
			return nil, perr.Wrapf(gse, perr.ErrorCodeTooManyRequests, "github rate limited with status %d", gse.Status)
		case resp.StatusCode == http.StatusUnauthorized:
			return nil, backoff.Permanent(perr.Wrapf(gse, perr.ErrorCodeUnauthorized, "github rejected credential"))
		case resp.StatusCode == http.StatusForbidden:
			return nil, backoff.Permanent(perr.Wrapf(gse, perr.ErrorCodeForbidden, "github forbidden"))
		default:
			return nil, backoff.Permanent(perr.Wrapf(gse, perr.ErrorCodeUnknown, "github unexpected status %d", gse.Status))
		}
	}
	defer func() { _ = drainAndClose(resp.Body) }()

	var out Response[T]
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&out); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeJSON, "github decode response")
	}
	return &out, nil
}
