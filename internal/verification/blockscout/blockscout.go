// Package blockscout verifies contracts through the Blockscout v2 REST API
// using the standard JSON input upload.
package blockscout

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/verification"
)

type messageResponse struct {
	Message string `json:"message"`
}

type contractResponse struct {
	IsVerified          bool   `json:"is_verified"`
	IsFullyVerified     bool   `json:"is_fully_verified"`
	IsPartiallyVerified bool   `json:"is_partially_verified"`
	Name                string `json:"name"`
}

// Client talks to one Blockscout instance
type Client struct {
	http *resty.Client
}

// Option configures a Client
type Option func(*options)

type options struct {
	timeout  time.Duration
	limiter  *rate.Limiter
	limiters *verification.Limiters
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLimiter throttles requests through a shared token bucket
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithLimiters picks the bucket of the chain's API host from pool
func WithLimiters(pool *verification.Limiters) Option {
	return func(o *options) { o.limiters = pool }
}

// New creates a client. chain.ExplorerAPIURL is the instance's /api root.
func New(chain chains.Descriptor, opts ...Option) (*Client, error) {
	if chain.ExplorerAPIURL == "" {
		return nil, fmt.Errorf("%s: explorer api url is required", chain)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.limiter == nil && o.limiters != nil {
		o.limiter = o.limiters.For(chain.ExplorerAPIURL)
	}
	return &Client{http: verification.NewHTTPClient(chain.ExplorerAPIURL, o.timeout, o.limiter)}, nil
}

// Constructor adapts New to verification.Constructor
func Constructor(opts ...Option) verification.Constructor {
	return func(chain chains.Descriptor) (verification.Explorer, error) {
		return New(chain, opts...)
	}
}

// Kind implements verification.Explorer
func (c *Client) Kind() chains.ExplorerKind {
	return chains.ExplorerBlockscout
}

// Submit uploads the standard JSON input. Blockscout starts the job
// asynchronously and hands back no id; Poll watches the contract instead.
func (c *Client) Submit(ctx context.Context, task *verification.Task) (verification.Submission, error) {
	b := task.Bundle
	license := strings.ToLower(strings.ReplaceAll(b.License, "-", "_"))
	if license == "" {
		license = "none"
	}

	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{
			"compiler_version":            b.LongCompilerVersion(),
			"contract_name":               b.ContractName(),
			"license_type":                license,
			"constructor_args":            b.ConstructorArgsHex(),
			"autodetect_constructor_args": "false",
		}).
		SetMultipartField("files[0]", "input.json", "application/json", strings.NewReader(string(b.StandardJSON))).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/v2/smart-contracts/%s/verification/via/standard-input", task.Address.Hex()))
	if err != nil {
		return verification.Submission{}, err
	}
	if err := verification.StatusError(resp); err != nil {
		return verification.Submission{}, err
	}

	msg := out.Message
	lower := strings.ToLower(msg)
	switch {
	case resp.StatusCode() == http.StatusNotFound, strings.Contains(lower, "not a smart-contract"):
		return verification.Submission{}, fmt.Errorf("%w: %s", verification.ErrNotFound, msg)
	case strings.Contains(lower, "already verified"):
		return verification.Submission{AlreadyVerified: true, Message: msg}, nil
	case resp.IsError():
		if msg == "" {
			msg = string(resp.Body())
		}
		return verification.Submission{}, fmt.Errorf("%w: %s", verification.ErrRejected, verification.Truncate(msg, 300))
	}
	return verification.Submission{Message: msg}, nil
}

// Poll reads the contract and reports verified once is_verified flips.
// Blockscout exposes no failure state for the job, so a rejected source
// stays pending until the dispatcher's poll timeout.
func (c *Client) Poll(ctx context.Context, task *verification.Task) (verification.PollResult, error) {
	var out contractResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/v2/smart-contracts/%s", task.Address.Hex()))
	if err != nil {
		return verification.PollResult{}, err
	}
	if err := verification.StatusError(resp); err != nil {
		return verification.PollResult{}, err
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return verification.PollResult{Status: verification.PollNotFound, Message: "contract not indexed"}, nil
	case resp.IsError():
		return verification.PollResult{}, fmt.Errorf("%w: %s", verification.ErrUnavailable, resp.Status())
	case out.IsVerified || out.IsFullyVerified || out.IsPartiallyVerified:
		return verification.PollResult{Status: verification.PollVerified, Message: out.Name}, nil
	}
	return verification.PollResult{Status: verification.PollPending}, nil
}
