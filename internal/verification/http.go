package verification

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// NewHTTPClient builds the resty client shared by explorer adapters. When
// limiter is set every request waits for a token first.
func NewHTTPClient(baseURL string, timeout time.Duration, limiter *rate.Limiter) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "xdeploy").
		SetTimeout(timeout)

	// explorer proxies often label JSON as text/plain or text/html
	c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
		r.ForceContentType("application/json")
		return nil
	})
	if limiter != nil {
		c.OnBeforeRequest(func(_ *resty.Client, r *resty.Request) error {
			return limiter.Wait(r.Context())
		})
	}
	return c
}

// StatusError maps transport-level HTTP failures. 429 is ErrRateLimited and
// 5xx is ErrUnavailable; nil means the caller should inspect the body.
func StatusError(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, resp.Status())
	case code >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, resp.Status())
	}
	return nil
}

// Truncate shortens an explorer message for logs and reasons
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
