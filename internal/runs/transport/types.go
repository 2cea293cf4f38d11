// Package transport provides HTTP request/response types for run history.
package transport

import (
	"encoding/json"
	"time"

	"github.com/pendergraft/xdeploy/internal/storage"
)

// RunListResponse is the response for listing runs.
type RunListResponse struct {
	Data       []RunItem  `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// RunItem is a run in a list.
type RunItem struct {
	ID                string     `json:"id"`
	Contract          string     `json:"contract"`
	PredictedAddress  string     `json:"predictedAddress"`
	Signer            string     `json:"signer"`
	StartedAt         time.Time  `json:"startedAt"`
	FinishedAt        *time.Time `json:"finishedAt,omitempty"`
	Success           bool       `json:"success"`
	AddressConsistent bool       `json:"addressConsistent"`
}

// Pagination contains cursor pagination info.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// RunResponse is the full view of one run.
type RunResponse struct {
	RunItem
	Salt   string          `json:"salt"`
	Chains []ChainItem     `json:"chains"`
	Report json.RawMessage `json:"report,omitempty"`
}

// ChainItem is the state of one chain of a run.
type ChainItem struct {
	ChainID   uint64    `json:"chainId"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Address   string    `json:"address,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	Explorer  string    `json:"explorer,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toRunItem(r storage.Run) RunItem {
	return RunItem{
		ID:                r.ID,
		Contract:          r.Contract,
		PredictedAddress:  r.PredictedAddress,
		Signer:            r.Signer,
		StartedAt:         r.StartedAt,
		FinishedAt:        r.FinishedAt,
		Success:           r.Success,
		AddressConsistent: r.AddressConsistent,
	}
}

func toRunResponse(r *storage.Run) RunResponse {
	resp := RunResponse{
		RunItem: toRunItem(*r),
		Salt:    r.Salt,
		Chains:  make([]ChainItem, 0, len(r.Chains)),
		Report:  r.Report,
	}
	for _, c := range r.Chains {
		resp.Chains = append(resp.Chains, ChainItem{
			ChainID:   c.ChainID,
			Name:      c.Name,
			State:     c.State,
			Address:   c.Address,
			TxHash:    c.TxHash,
			Explorer:  c.Explorer,
			Reason:    c.Reason,
			UpdatedAt: c.UpdatedAt,
		})
	}
	return resp
}
