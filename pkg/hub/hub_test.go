package hub

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/megamem/pkg/vault"
)

var _ vault.Service = (*Server)(nil)

func newTestHub(t *testing.T, authToken string) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(41484, authToken, nil)
	ts := httptest.NewServer(s.router())
	t.Cleanup(ts.Close)
	return s, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// dialPlugin connects a fake Obsidian plugin and consumes the welcome
// message.
func dialPlugin(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, string) {
	t.Helper()

	url := wsURL(ts, "/ws")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "connected", welcome["type"])
	clientID, _ := welcome["clientId"].(string)
	require.NotEmpty(t, clientID)
	return conn, clientID
}

// registerPlugin registers a vault and consumes the ack.
func registerPlugin(t *testing.T, conn *websocket.Conn, vaultName string) map[string]any {
	t.Helper()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":    "register",
		"payload": map[string]any{"vaultName": vaultName, "vaultPath": "/vaults/" + vaultName},
	}))

	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "registered", ack["type"])
	return ack
}

func TestHealthRequiresToken(t *testing.T) {
	_, ts := newTestHub(t, "secret")

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/health?token=secret")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, float64(0), health["clients"])
}

func TestRejectsNonLocalPeers(t *testing.T) {
	s := NewServer(41484, "", nil)
	router := s.router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden - localhost only")
}

func TestWebSocketAuthFailureCloses4001(t *testing.T) {
	_, ts := newTestHub(t, "secret")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws")+"?token=wrong", nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, closeAuthFailed, closeErr.Code)
}

func TestRegisterPromotesFirstVault(t *testing.T) {
	s, ts := newTestHub(t, "")

	connA, _ := dialPlugin(t, ts, "")
	ackA := registerPlugin(t, connA, "alpha")
	assert.Equal(t, true, ackA["isActive"])
	assert.Equal(t, "alpha", ackA["vaultId"])

	connB, _ := dialPlugin(t, ts, "")
	ackB := registerPlugin(t, connB, "beta")
	assert.Equal(t, false, ackB["isActive"])

	assert.Equal(t, "alpha", s.GetActiveVault())
	assert.ElementsMatch(t, []string{"alpha", "beta"}, s.GetConnectedVaults())

	info := s.GetVaultInfo("beta")
	require.NotNil(t, info)
	assert.Equal(t, "beta", info["vaultId"])
	assert.Equal(t, "/vaults/beta", info["vaultPath"])
	assert.Equal(t, false, info["isActive"])
}

func TestRegisterWithoutNameGetsGeneratedID(t *testing.T) {
	s, ts := newTestHub(t, "")

	conn, clientID := dialPlugin(t, ts, "")
	ack := registerPlugin(t, conn, "")
	assert.Equal(t, "vault_"+clientID, ack["vaultId"])
	assert.Equal(t, "vault_"+clientID, s.GetActiveVault())
}

func TestDisconnectPromotesRemainingVault(t *testing.T) {
	s, ts := newTestHub(t, "")

	connA, _ := dialPlugin(t, ts, "")
	registerPlugin(t, connA, "alpha")
	connB, _ := dialPlugin(t, ts, "")
	registerPlugin(t, connB, "beta")

	require.Equal(t, "alpha", s.GetActiveVault())
	connA.Close()

	require.Eventually(t, func() bool {
		return s.GetActiveVault() == "beta"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"beta"}, s.GetConnectedVaults())
}

// servePlugin answers incoming file operations with a canned response.
func servePlugin(t *testing.T, conn *websocket.Conn, payload map[string]any) {
	t.Helper()
	go func() {
		for {
			var req map[string]any
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			id, _ := req["id"].(string)
			if id == "" {
				continue
			}
			opType, _ := req["type"].(string)
			_ = conn.WriteJSON(map[string]any{
				"type":      opType + ":response",
				"id":        id,
				"success":   true,
				"payload":   payload,
				"timestamp": "3.0",
			})
		}
	}()
}

func TestRPCRoundTrip(t *testing.T) {
	_, ts := newTestHub(t, "")

	conn, _ := dialPlugin(t, ts, "")
	registerPlugin(t, conn, "alpha")
	servePlugin(t, conn, map[string]any{"content": "note body"})

	body, _ := json.Marshal(map[string]any{
		"operation": "file:read",
		"vaultId":   "alpha",
		"params":    map[string]any{"path": "a.md"},
	})
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, true, envelope["success"])
	assert.Equal(t, map[string]any{"content": "note body"}, envelope["result"])
	assert.Equal(t, "3.0", envelope["timestamp"])
}

func TestRPCUnknownVault(t *testing.T) {
	_, ts := newTestHub(t, "")

	body, _ := json.Marshal(map[string]any{"operation": "file:read", "vaultId": "ghost"})
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "No connected vault found: ghost", envelope["error"])
}

func TestRPCMissingOperation(t *testing.T) {
	_, ts := newTestHub(t, "")

	resp, err := http.Post(ts.URL+"/rpc", "application/json", strings.NewReader(`{"vaultId":"a"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRPCPayloadTooLarge(t *testing.T) {
	_, ts := newTestHub(t, "")

	big := bytes.Repeat([]byte("x"), maxRPCPayload+1)
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(big))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRPCChunkedPayloadTooLarge(t *testing.T) {
	_, ts := newTestHub(t, "")

	// Hide the reader's type so the client sends a chunked body with no
	// Content-Length.
	big := bytes.Repeat([]byte("x"), maxRPCPayload+1)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/rpc", struct{ io.Reader }{bytes.NewReader(big)})
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRPCTimeout(t *testing.T) {
	_, ts := newTestHub(t, "")

	// Register a plugin that never answers operations.
	conn, _ := dialPlugin(t, ts, "")
	registerPlugin(t, conn, "alpha")

	body, _ := json.Marshal(map[string]any{
		"operation": "file:read",
		"vaultId":   "alpha",
		"timeoutMs": 100,
	})
	resp, err := http.Post(ts.URL+"/rpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	var envelope map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	assert.Equal(t, "Request timeout", envelope["error"])
}

func TestInvalidJSONOverSocket(t *testing.T) {
	_, ts := newTestHub(t, "")

	conn, _ := dialPlugin(t, ts, "")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Invalid JSON", msg["error"])
}

func TestUnknownMessageType(t *testing.T) {
	_, ts := newTestHub(t, "")

	conn, _ := dialPlugin(t, ts, "")
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "mystery"}))

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "Unknown message type: mystery", msg["error"])
}

func TestDisconnectCancelsOnlyOwnedRequests(t *testing.T) {
	s := NewServer(41484, "", nil)

	chA := make(chan *vault.OperationResponse, 1)
	chB := make(chan *vault.OperationResponse, 1)
	s.mu.Lock()
	s.pending["req-a"] = &pendingRequest{ch: chA, clientID: "client-a"}
	s.pending["req-b"] = &pendingRequest{ch: chB, clientID: "client-b"}
	s.mu.Unlock()

	s.removeClient("client-a")

	select {
	case _, open := <-chA:
		assert.False(t, open)
	default:
		t.Fatal("client-a's pending request was not cancelled")
	}

	select {
	case <-chB:
		t.Fatal("client-b's pending request must survive client-a's disconnect")
	default:
	}

	s.mu.Lock()
	_, aStillPending := s.pending["req-a"]
	_, bStillPending := s.pending["req-b"]
	s.mu.Unlock()
	assert.False(t, aStillPending)
	assert.True(t, bStillPending)
}

func TestSetActiveVault(t *testing.T) {
	s, ts := newTestHub(t, "")

	connA, _ := dialPlugin(t, ts, "")
	registerPlugin(t, connA, "alpha")
	connB, _ := dialPlugin(t, ts, "")
	registerPlugin(t, connB, "beta")

	assert.True(t, s.SetActiveVault("beta"))
	assert.Equal(t, "beta", s.GetActiveVault())
	assert.False(t, s.SetActiveVault("ghost"))
}
