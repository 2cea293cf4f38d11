// Package sourcify verifies contracts through the Sourcify v2 API. It backs
// chains whose explorer kind is "custom".
package sourcify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/verification"
)

// Error codes Sourcify reports when the contract is not on chain yet
var notFoundCodes = map[string]bool{
	"cannot_fetch_bytecode": true,
	"contract_not_deployed": true,
}

type verifyRequest struct {
	StdJSONInput            json.RawMessage `json:"stdJsonInput"`
	CompilerVersion         string          `json:"compilerVersion"`
	ContractIdentifier      string          `json:"contractIdentifier"`
	CreationTransactionHash string          `json:"creationTransactionHash,omitempty"`
}

type verifyResponse struct {
	VerificationID string `json:"verificationId"`
}

type apiError struct {
	CustomCode string `json:"customCode"`
	Message    string `json:"message"`
}

type jobResponse struct {
	IsJobCompleted bool      `json:"isJobCompleted"`
	VerificationID string    `json:"verificationId"`
	Error          *apiError `json:"error"`
	Contract       struct {
		Match *string `json:"match"`
	} `json:"contract"`
}

// Client talks to one Sourcify server
type Client struct {
	http    *resty.Client
	chainID uint64
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

// New creates a client. chain.ExplorerAPIURL is the server root, e.g.
// https://sourcify.dev/server.
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
	c := verification.NewHTTPClient(chain.ExplorerAPIURL, o.timeout, o.limiter).
		SetHeader("Content-Type", "application/json")
	return &Client{http: c, chainID: chain.ChainID}, nil
}

// Constructor adapts New to verification.Constructor
func Constructor(opts ...Option) verification.Constructor {
	return func(chain chains.Descriptor) (verification.Explorer, error) {
		return New(chain, opts...)
	}
}

// Kind implements verification.Explorer
func (c *Client) Kind() chains.ExplorerKind {
	return chains.ExplorerCustom
}

// Submit starts a verification job
func (c *Client) Submit(ctx context.Context, task *verification.Task) (verification.Submission, error) {
	b := task.Bundle
	req := verifyRequest{
		StdJSONInput:       b.StandardJSON,
		CompilerVersion:    strings.TrimPrefix(b.CompilerVersion, "v"),
		ContractIdentifier: b.ContractIdentifier,
	}
	if task.CreationTx != (common.Hash{}) {
		req.CreationTransactionHash = task.CreationTx.Hex()
	}

	var (
		out    verifyResponse
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v2/verify/%d/%s", c.chainID, task.Address.Hex()))
	if err != nil {
		return verification.Submission{}, err
	}
	if err := verification.StatusError(resp); err != nil {
		return verification.Submission{}, err
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusConflict:
		return verification.Submission{AlreadyVerified: true, Message: apiErr.Message}, nil
	case code == http.StatusNotFound || notFoundCodes[apiErr.CustomCode]:
		return verification.Submission{}, fmt.Errorf("%w: %s", verification.ErrNotFound, apiErr.Message)
	case resp.IsError():
		return verification.Submission{}, fmt.Errorf("%w: %s: %s", verification.ErrRejected, apiErr.CustomCode, verification.Truncate(apiErr.Message, 300))
	}
	return verification.Submission{GUID: out.VerificationID}, nil
}

// Poll reads the job status
func (c *Client) Poll(ctx context.Context, task *verification.Task) (verification.PollResult, error) {
	var out jobResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v2/verify/" + task.GUID)
	if err != nil {
		return verification.PollResult{}, err
	}
	if err := verification.StatusError(resp); err != nil {
		return verification.PollResult{}, err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return verification.PollResult{Status: verification.PollNotFound, Message: "verification job not found"}, nil
	}
	if resp.IsError() {
		return verification.PollResult{}, fmt.Errorf("%w: %s", verification.ErrUnavailable, resp.Status())
	}

	switch {
	case !out.IsJobCompleted:
		return verification.PollResult{Status: verification.PollPending}, nil
	case out.Error != nil && notFoundCodes[out.Error.CustomCode]:
		return verification.PollResult{Status: verification.PollNotFound, Message: out.Error.Message}, nil
	case out.Error != nil:
		return verification.PollResult{Status: verification.PollFailed, Message: verification.Truncate(out.Error.Message, 300)}, nil
	case out.Contract.Match != nil:
		return verification.PollResult{Status: verification.PollVerified, Message: *out.Contract.Match}, nil
	}
	return verification.PollResult{Status: verification.PollFailed, Message: "job completed without a match"}, nil
}
