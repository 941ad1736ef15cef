package github

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// GHStatusError wraps non-2xx HTTP responses from GitHub
type GHStatusError struct {
	Status int
	Body   string
	Err    error

	// RetryAfter is the server's Retry-After hint, zero when absent
	RetryAfter time.Duration
}

// Error interface
func (e *GHStatusError) Error() string { return e.Err.Error() }

// Unwrap interface
func (e *GHStatusError) Unwrap() error { return e.Err }

// HTTPStatus interface
func (e *GHStatusError) HTTPStatus() int { return e.Status }

// statusError reads a short body tail for diagnostics and closes the response
func statusError(resp *http.Response) *GHStatusError {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	_ = resp.Body.Close()
	body := strings.TrimSpace(string(b))
	return &GHStatusError{
		Status: resp.StatusCode,
		Body:   body,
		Err:    fmt.Errorf("github status %d: %s", resp.StatusCode, body),
	}
}

// parseRateHeaders returns X-RateLimit-Remaining (-1 when absent) and Retry-After seconds
func parseRateHeaders(h http.Header) (remaining int, retryAfter int) {
	remaining = -1
	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			remaining = n
		}
	}
	retryAfter, _ = strconv.Atoi(h.Get("Retry-After"))
	return remaining, retryAfter
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}

// IsRateLimited reports whether err is a GHStatusError with 429 or 403 status
func IsRateLimited(err error) bool {
	var gse *GHStatusError
	if errors.As(err, &gse) {
		// GitHub may use 429 or 403 (secondary RL)
		return gse.Status == 429 || gse.Status == 403
	}
	return false
}

// IsTransient reports whether err is a GHStatusError with a 5xx status
func IsTransient(err error) bool {
	var gse *GHStatusError
	if errors.As(err, &gse) {
		return gse.Status >= 500 && gse.Status <= 599
	}
	return false
}
