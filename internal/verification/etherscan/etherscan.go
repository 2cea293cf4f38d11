// Package etherscan verifies contracts through the Etherscan-compatible
// contract API (Etherscan v2, Routescan, ftmscan and friends).
package etherscan

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/verification"
)

// Response markers of the Etherscan API. Matched case-insensitively as substrings.
const (
	markerPending     = "pending in queue"
	markerPass        = "pass - verified"
	markerAlreadyPass = "already verified"
	markerFail        = "fail - unable to verify"
	markerNotLocated  = "unable to locate contractcode"
	markerRateLimit   = "rate limit"
)

const codeFormatStandard = "solidity-standard-json-input"

// licenseTypes maps SPDX identifiers to Etherscan's numeric license codes.
// Anything else is sent as 1, "No License (None)".
var licenseTypes = map[string]string{
	"UNLICENSED":   "2",
	"MIT":          "3",
	"GPL-2.0":      "4",
	"GPL-3.0":      "5",
	"LGPL-2.1":     "6",
	"LGPL-3.0":     "7",
	"BSD-2-Clause": "8",
	"BSD-3-Clause": "9",
	"MPL-2.0":      "10",
	"OSL-3.0":      "11",
	"Apache-2.0":   "12",
	"AGPL-3.0":     "13",
	"BUSL-1.1":     "14",
}

// apiResponse is the envelope every Etherscan endpoint returns
type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Result  string `json:"result"`
}

// Client talks to one Etherscan-compatible API for one chain
type Client struct {
	http    *resty.Client
	chainID uint64
	apiKey  string
}

// Option configures a Client
type Option func(*options)

type options struct {
	timeout  time.Duration
	limiter  *rate.Limiter
	limiters *verification.Limiters
	logger   *slog.Logger
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

// WithLogger sets the logger used for configuration warnings
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a client for chain. A missing API key is allowed; most
// Etherscan deployments then answer with a rejection that ends the task.
func New(chain chains.Descriptor, opts ...Option) (*Client, error) {
	if chain.ExplorerAPIURL == "" {
		return nil, fmt.Errorf("%s: explorer api url is required", chain)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.limiter == nil && o.limiters != nil {
		o.limiter = o.limiters.For(chain.ExplorerAPIURL)
	}
	if chain.APIKey == "" {
		o.logger.Warn("no explorer api key configured", "chain", chain.Name, "chain_id", chain.ChainID)
	}
	return &Client{
		http:    verification.NewHTTPClient(chain.ExplorerAPIURL, o.timeout, o.limiter),
		chainID: chain.ChainID,
		apiKey:  chain.APIKey,
	}, nil
}

// Constructor adapts New to verification.Constructor
func Constructor(opts ...Option) verification.Constructor {
	return func(chain chains.Descriptor) (verification.Explorer, error) {
		return New(chain, opts...)
	}
}

// Kind implements verification.Explorer
func (c *Client) Kind() chains.ExplorerKind {
	return chains.ExplorerEtherscan
}

// Submit posts the standard JSON input to verifysourcecode
func (c *Client) Submit(ctx context.Context, task *verification.Task) (verification.Submission, error) {
	b := task.Bundle
	form := map[string]string{
		"module":                "contract",
		"action":                "verifysourcecode",
		"apikey":                c.apiKey,
		"contractaddress":       task.Address.Hex(),
		"sourceCode":            string(b.StandardJSON),
		"codeformat":            codeFormatStandard,
		"contractname":          b.ContractIdentifier,
		"compilerversion":       b.LongCompilerVersion(),
		"constructorArguements": b.ConstructorArgsHex(),
		"licenseType":           licenseType(b.License),
	}

	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("chainid", strconv.FormatUint(c.chainID, 10)).
		SetFormData(form).
		SetResult(&out).
		Post("")
	if err != nil {
		return verification.Submission{}, err
	}
	if err := verification.StatusError(resp); err != nil {
		return verification.Submission{}, err
	}

	if out.Status == "1" {
		return verification.Submission{GUID: out.Result, Message: out.Message}, nil
	}
	if contains(out.Result, markerAlreadyPass) {
		return verification.Submission{AlreadyVerified: true, Message: out.Result}, nil
	}
	return verification.Submission{}, classify(out)
}

// Poll reads checkverifystatus for the task's GUID
func (c *Client) Poll(ctx context.Context, task *verification.Task) (verification.PollResult, error) {
	var out apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"chainid": strconv.FormatUint(c.chainID, 10),
			"module":  "contract",
			"action":  "checkverifystatus",
			"guid":    task.GUID,
			"apikey":  c.apiKey,
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return verification.PollResult{}, err
	}
	if err := verification.StatusError(resp); err != nil {
		return verification.PollResult{}, err
	}

	msg := out.Result
	switch {
	case contains(msg, markerPending):
		return verification.PollResult{Status: verification.PollPending, Message: msg}, nil
	case contains(msg, markerPass), contains(msg, markerAlreadyPass):
		return verification.PollResult{Status: verification.PollVerified, Message: msg}, nil
	case contains(msg, markerNotLocated):
		return verification.PollResult{Status: verification.PollNotFound, Message: msg}, nil
	case contains(msg, markerRateLimit):
		return verification.PollResult{}, fmt.Errorf("%w: %s", verification.ErrRateLimited, msg)
	case contains(msg, markerFail), out.Status == "0":
		return verification.PollResult{Status: verification.PollFailed, Message: verification.Truncate(msg, 300)}, nil
	}
	return verification.PollResult{Status: verification.PollPending, Message: msg}, nil
}

func classify(out apiResponse) error {
	msg := out.Result
	if msg == "" {
		msg = out.Message
	}
	switch {
	case contains(msg, markerNotLocated):
		return fmt.Errorf("%w: %s", verification.ErrNotFound, msg)
	case contains(msg, markerRateLimit):
		return fmt.Errorf("%w: %s", verification.ErrRateLimited, msg)
	}
	return fmt.Errorf("%w: %s", verification.ErrRejected, verification.Truncate(msg, 300))
}

func licenseType(spdx string) string {
	if t, ok := licenseTypes[spdx]; ok {
		return t
	}
	return "1"
}

func contains(s, marker string) bool {
	return strings.Contains(strings.ToLower(s), marker)
}
