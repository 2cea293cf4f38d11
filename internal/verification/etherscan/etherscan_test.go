package etherscan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/verification"
)

func newTask() *verification.Task {
	return &verification.Task{
		ChainID: 11155111,
		Address: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Bundle: &verification.SourceBundle{
			StandardJSON:       json.RawMessage(`{"language":"Solidity"}`),
			CompilerVersion:    "0.8.24+commit.e11b9ed9",
			ContractIdentifier: "contracts/Greeter.sol:Greeter",
			ConstructorArgs:    []byte{0xab, 0xcd},
			License:            "MIT",
		},
	}
}

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(chains.Descriptor{
		Name:           "sepolia",
		ChainID:        11155111,
		ExplorerKind:   chains.ExplorerEtherscan,
		ExplorerAPIURL: srv.URL + "/api",
		APIKey:         "test-key",
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status, message, result string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(apiResponse{Status: status, Message: message, Result: result})
}

func TestSubmit_Accepted(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api", r.URL.Path)
		assert.NoError(t, r.ParseForm())

		assert.Equal(t, "11155111", r.URL.Query().Get("chainid"))
		assert.Equal(t, "verifysourcecode", r.PostForm.Get("action"))
		assert.Equal(t, "test-key", r.PostForm.Get("apikey"))
		assert.Equal(t, "solidity-standard-json-input", r.PostForm.Get("codeformat"))
		assert.Equal(t, "contracts/Greeter.sol:Greeter", r.PostForm.Get("contractname"))
		assert.Equal(t, "v0.8.24+commit.e11b9ed9", r.PostForm.Get("compilerversion"))
		assert.Equal(t, "abcd", r.PostForm.Get("constructorArguements"))
		assert.Equal(t, "3", r.PostForm.Get("licenseType"))
		assert.Equal(t, `{"language":"Solidity"}`, r.PostForm.Get("sourceCode"))

		writeJSON(w, "1", "OK", "guid-123")
	})

	sub, err := c.Submit(context.Background(), newTask())
	require.NoError(t, err)
	assert.Equal(t, "guid-123", sub.GUID)
	assert.False(t, sub.AlreadyVerified)
}

func TestSubmit_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		result      string
		httpStatus  int
		wantErr     error
		wantAlready bool
	}{
		{name: "already verified", result: "Contract source code already verified", wantAlready: true},
		{name: "not indexed", result: "Unable to locate ContractCode at 0x5fbd", wantErr: verification.ErrNotFound},
		{name: "rate limited body", result: "Max rate limit reached", wantErr: verification.ErrRateLimited},
		{name: "rejected", result: "Invalid constructor arguments provided", wantErr: verification.ErrRejected},
		{name: "http 429", httpStatus: http.StatusTooManyRequests, wantErr: verification.ErrRateLimited},
		{name: "http 503", httpStatus: http.StatusServiceUnavailable, wantErr: verification.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				if tt.httpStatus != 0 {
					w.WriteHeader(tt.httpStatus)
					return
				}
				writeJSON(w, "0", "NOTOK", tt.result)
			})

			sub, err := c.Submit(context.Background(), newTask())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlready, sub.AlreadyVerified)
		})
	}
}

func TestPoll(t *testing.T) {
	tests := []struct {
		status  string
		result  string
		want    verification.PollStatus
		wantErr error
	}{
		{status: "0", result: "Pending in queue", want: verification.PollPending},
		{status: "1", result: "Pass - Verified", want: verification.PollVerified},
		{status: "1", result: "Already Verified", want: verification.PollVerified},
		{status: "0", result: "Fail - Unable to verify. Compiled bytecode does not match", want: verification.PollFailed},
		{status: "0", result: "Unable to locate ContractCode at 0x5fbd", want: verification.PollNotFound},
		{status: "0", result: "Max rate limit reached, please use API Key for higher rate limit", wantErr: verification.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				q := r.URL.Query()
				assert.Equal(t, "checkverifystatus", q.Get("action"))
				assert.Equal(t, "guid-123", q.Get("guid"))
				assert.Equal(t, "11155111", q.Get("chainid"))
				writeJSON(w, tt.status, "", tt.result)
			})

			task := newTask()
			task.GUID = "guid-123"
			res, err := c.Poll(context.Background(), task)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
		})
	}
}

func TestNew_RequiresAPIURL(t *testing.T) {
	_, err := New(chains.Descriptor{Name: "mainnet", ChainID: 1})
	assert.Error(t, err)
}

func TestLicenseType(t *testing.T) {
	assert.Equal(t, "3", licenseType("MIT"))
	assert.Equal(t, "1", licenseType(""))
	assert.Equal(t, "1", licenseType("WTFPL"))
}
