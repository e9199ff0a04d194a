package rpcbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/megamem/pkg/vault"
)

var _ vault.Service = (*Bridge)(nil)

func newHubStub(t *testing.T, rpcStatus int, rpcBody map[string]any) (*httptest.Server, *Bridge) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":          "healthy",
			"clients":         1,
			"clientIds":       []string{"c1"},
			"connectedVaults": []string{"main", "other"},
			"activeVault":     "main",
			"timestamp":       "1.0",
		})
	})
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(rpcStatus)
		if rpcBody != nil {
			json.NewEncoder(w).Encode(rpcBody)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	bridge, err := New(u.Hostname(), port, "secret", nil)
	require.NoError(t, err)
	return server, bridge
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New("127.0.0.1", 1, "secret", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot connect to MCP server")
}

func TestNewAttachesDespiteTokenMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	bridge, err := New(u.Hostname(), port, "wrong", nil)
	require.NoError(t, err)
	require.NotNil(t, bridge)

	resp, err := bridge.RequestFileOperation(context.Background(), "main", "file:read", nil, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "Authentication failed - token mismatch", resp.Error)
}

func TestRequestFileOperationSuccess(t *testing.T) {
	_, bridge := newHubStub(t, http.StatusOK, map[string]any{
		"success":   true,
		"result":    map[string]any{"content": "hello"},
		"timestamp": "2.0",
	})

	resp, err := bridge.RequestFileOperation(context.Background(), "main", "file:read", map[string]any{"path": "a.md"}, 0)
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.True(t, resp.Success)
	assert.Equal(t, map[string]any{"content": "hello"}, resp.Payload)
	assert.Equal(t, "2.0", resp.Timestamp)
}

func TestRequestFileOperationStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantNil   bool
		wantError string
	}{
		{"unauthorized", http.StatusUnauthorized, false, "Authentication failed - token mismatch"},
		{"vault missing", http.StatusNotFound, true, ""},
		{"gateway timeout", http.StatusGatewayTimeout, false, "Request timeout after 20s"},
		{"server error", http.StatusInternalServerError, false, "RPC failed with status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, bridge := newHubStub(t, tt.status, nil)

			resp, err := bridge.RequestFileOperation(context.Background(), "main", "file:read", nil, 20*time.Second)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, resp)
				return
			}
			require.NotNil(t, resp)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestVaultEnumerationFromHealth(t *testing.T) {
	_, bridge := newHubStub(t, http.StatusOK, nil)

	assert.Equal(t, []string{"main", "other"}, bridge.GetConnectedVaults())
	assert.Equal(t, "main", bridge.GetActiveVault())

	info := bridge.GetAllVaultInfo()
	require.Len(t, info, 2)
	assert.Equal(t, true, info["main"]["isActive"])
	assert.Equal(t, false, info["other"]["isActive"])
}
