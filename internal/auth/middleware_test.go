package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStatus(w http.ResponseWriter, status int, code, message string) {
	w.WriteHeader(status)
}

func TestKeys(t *testing.T) {
	keys := NewKeys("xd_key_one", " ", "xd_key_two ")
	require.True(t, keys.Enabled())

	id, ok := keys.Match("xd_key_one")
	assert.True(t, ok)
	assert.Len(t, id, 8)

	_, ok = keys.Match("xd_key_two")
	assert.True(t, ok, "keys are trimmed")

	_, ok = keys.Match("xd_key_three")
	assert.False(t, ok)

	_, ok = keys.Match("")
	assert.False(t, ok)

	assert.False(t, NewKeys().Enabled())
	assert.False(t, (*Keys)(nil).Enabled())
}

func TestMiddleware_ValidKey(t *testing.T) {
	keys := NewKeys("xd_key_valid")
	wantID, _ := keys.Match("xd_key_valid")

	var gotID string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetKeyIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{name: "x-api-key", header: "X-API-Key", value: "xd_key_valid"},
		{name: "bearer", header: "Authorization", value: "Bearer xd_key_valid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID = ""
			req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
			req.Header.Set(tt.header, tt.value)
			rec := httptest.NewRecorder()

			Middleware(keys, writeStatus)(handler).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, wantID, gotID)
		})
	}
}

func TestMiddleware_Rejects(t *testing.T) {
	keys := NewKeys("xd_key_valid")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be called")
	})

	for _, value := range []string{"", "wrong"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
		if value != "" {
			req.Header.Set("X-API-Key", value)
		}
		rec := httptest.NewRecorder()

		Middleware(keys, writeStatus)(handler).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestMiddleware_OpenWithoutKeys(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	Middleware(NewKeys(), writeStatus)(handler).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey()
	require.NoError(t, err)
	b, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.Len(t, a, len(KeyPrefix)+2*KeyLength)
	assert.Equal(t, KeyPrefix, a[:len(KeyPrefix)])
	assert.NotEqual(t, a, b)

	_, ok := NewKeys(a).Match(a)
	assert.True(t, ok)
}
