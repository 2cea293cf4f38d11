// Package client provides a Go client for the xdeploy run history API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is an xdeploy API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithAPIKey sends key with every request
func WithAPIKey(key string) Option {
	return func(client *Client) {
		client.apiKey = key
	}
}

// New creates a new xdeploy client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RunSummary is a run as listed
type RunSummary struct {
	ID                string     `json:"id"`
	Contract          string     `json:"contract"`
	PredictedAddress  string     `json:"predictedAddress"`
	Signer            string     `json:"signer"`
	StartedAt         time.Time  `json:"startedAt"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	Success           bool       `json:"success"`
	AddressConsistent bool       `json:"addressConsistent"`
}

// Run is a run with its per-chain results and full report
type Run struct {
	RunSummary
	Salt   string          `json:"salt"`
	Chains []ChainResult   `json:"chains"`
	Report json.RawMessage `json:"report,omitempty"`
}

// ChainResult is the latest state of one chain in a run
type ChainResult struct {
	ChainID   uint64    `json:"chainId"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Address   string    `json:"address,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	Explorer  string    `json:"explorer,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListRunsOptions filters and pages ListRuns. Zero values are omitted.
type ListRunsOptions struct {
	Contract string
	ChainID  uint64
	Success  *bool
	Limit    int
	Cursor   string
}

func (o ListRunsOptions) query() string {
	q := url.Values{}
	if o.Contract != "" {
		q.Set("contract", o.Contract)
	}
	if o.ChainID != 0 {
		q.Set("chain_id", strconv.FormatUint(o.ChainID, 10))
	}
	if o.Success != nil {
		q.Set("success", strconv.FormatBool(*o.Success))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ListRunsResponse is the response for listing runs
type ListRunsResponse struct {
	Data       []RunSummary `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// ListRuns lists recorded runs, most recent first
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOptions) (*ListRunsResponse, error) {
	var resp ListRunsResponse
	if err := c.get(ctx, "/api/v1/runs"+opts.query(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun gets a run by id
func (c *Client) GetRun(ctx context.Context, id string) (*Run, error) {
	var resp Run
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Ready checks the server's readiness endpoint
func (c *Client) Ready(ctx context.Context) error {
	return c.get(ctx, "/readyz", nil)
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func (c *Client) parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.Status = resp.StatusCode
	return &errResp.Error
}
