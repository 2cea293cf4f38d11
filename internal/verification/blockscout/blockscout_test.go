package blockscout

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/verification"
)

var testAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func newTask() *verification.Task {
	return &verification.Task{
		ChainID: 100,
		Address: testAddr,
		Bundle: &verification.SourceBundle{
			StandardJSON:       json.RawMessage(`{"language":"Solidity"}`),
			CompilerVersion:    "v0.8.24+commit.e11b9ed9",
			ContractIdentifier: "contracts/Greeter.sol:Greeter",
			ConstructorArgs:    []byte{0x01},
			License:            "MIT",
		},
	}
}

func newClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New(chains.Descriptor{
		Name:           "gnosis",
		ChainID:        100,
		ExplorerKind:   chains.ExplorerBlockscout,
		ExplorerAPIURL: srv.URL + "/api",
	})
	require.NoError(t, err)
	return c
}

func verifyPath() string {
	return "/api/v2/smart-contracts/" + testAddr.Hex() + "/verification/via/standard-input"
}

func TestSubmit_UploadsStandardInput(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(verifyPath(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "v0.8.24+commit.e11b9ed9", r.FormValue("compiler_version"))
		assert.Equal(t, "Greeter", r.FormValue("contract_name"))
		assert.Equal(t, "mit", r.FormValue("license_type"))
		assert.Equal(t, "01", r.FormValue("constructor_args"))

		f, _, err := r.FormFile("files[0]")
		if assert.NoError(t, err) {
			body, _ := io.ReadAll(f)
			assert.JSONEq(t, `{"language":"Solidity"}`, string(body))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Smart-contract verification started"}`))
	})

	sub, err := newClient(t, mux).Submit(context.Background(), newTask())
	require.NoError(t, err)
	assert.False(t, sub.AlreadyVerified)
	assert.Contains(t, sub.Message, "started")
}

func TestSubmit_MislabeledJSON(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(verifyPath(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`{"message":"Smart-contract verification started"}`))
	})

	sub, err := newClient(t, mux).Submit(context.Background(), newTask())
	require.NoError(t, err)
	assert.Contains(t, sub.Message, "started")
}

func TestSubmit_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantErr     error
		wantAlready bool
	}{
		{name: "already verified", status: http.StatusOK, body: `{"message":"Already verified"}`, wantAlready: true},
		{name: "not a contract", status: http.StatusBadRequest, body: `{"message":"Address is not a smart-contract"}`, wantErr: verification.ErrNotFound},
		{name: "unknown address", status: http.StatusNotFound, body: `{"message":"Not found"}`, wantErr: verification.ErrNotFound},
		{name: "bad input", status: http.StatusUnprocessableEntity, body: `{"message":"Invalid compiler version"}`, wantErr: verification.ErrRejected},
		{name: "throttled", status: http.StatusTooManyRequests, wantErr: verification.ErrRateLimited},
		{name: "server error", status: http.StatusBadGateway, wantErr: verification.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc(verifyPath(), func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			sub, err := newClient(t, mux).Submit(context.Background(), newTask())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAlready, sub.AlreadyVerified)
		})
	}
}

func TestPoll_UntilVerified(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/smart-contracts/"+testAddr.Hex(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) < 2 {
			_, _ = w.Write([]byte(`{"is_verified":false}`))
			return
		}
		_, _ = w.Write([]byte(`{"is_verified":true,"name":"Greeter"}`))
	})
	c := newClient(t, mux)

	res, err := c.Poll(context.Background(), newTask())
	require.NoError(t, err)
	assert.Equal(t, verification.PollPending, res.Status)

	res, err = c.Poll(context.Background(), newTask())
	require.NoError(t, err)
	assert.Equal(t, verification.PollVerified, res.Status)
}

func TestPoll_NotIndexed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	res, err := newClient(t, mux).Poll(context.Background(), newTask())
	require.NoError(t, err)
	assert.Equal(t, verification.PollNotFound, res.Status)
}
