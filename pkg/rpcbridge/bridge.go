// Package rpcbridge is the client side of the hub's HTTP RPC surface. A
// process that lost the port election uses it to reach the winning process's
// vault hub, behind the same interface the in-process hub implements.
package rpcbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/soundprediction/megamem/pkg/vault"
)

// Bridge mirrors the hub server interface over HTTP.
type Bridge struct {
	baseURL   string
	authToken string
	client    *http.Client
	logger    *slog.Logger
}

// rpcResult is the hub's /rpc response body.
type rpcResult struct {
	Success   bool   `json:"success"`
	Result    any    `json:"result"`
	Error     string `json:"error"`
	Timestamp any    `json:"timestamp"`
}

// healthInfo is the hub's /health response body.
type healthInfo struct {
	Status          string   `json:"status"`
	Clients         int      `json:"clients"`
	ClientIDs       []string `json:"clientIds"`
	ConnectedVaults []string `json:"connectedVaults"`
	ActiveVault     string   `json:"activeVault"`
	Timestamp       string   `json:"timestamp"`
}

// New creates a bridge to a hub at host:port and verifies something answers
// its health endpoint. A 401 still counts as a present server; individual
// operations report the token mismatch.
func New(host string, port int, authToken string, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bridge{
		baseURL:   fmt.Sprintf("http://%s:%d", host, port),
		authToken: authToken,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}

	status, err := b.ping()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to MCP server at %s", b.baseURL)
	}
	if status == http.StatusUnauthorized {
		logger.Warn("Remote MCP server rejected the auth token", "url", b.baseURL)
	}

	logger.Info("Connected to remote MCP server", "url", b.baseURL)
	return b, nil
}

// ping reports whether anything answers the health endpoint at all.
func (b *Bridge) ping() (int, error) {
	req, err := http.NewRequest(http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return 0, err
	}
	b.setAuth(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (b *Bridge) setAuth(req *http.Request) {
	if b.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.authToken)
	}
}

// RequestFileOperation forwards an operation to the remote hub's /rpc
// endpoint and maps HTTP statuses back to hub-shaped responses.
func (b *Bridge) RequestFileOperation(ctx context.Context, vaultID, operation string, params map[string]any, timeout time.Duration) (*vault.OperationResponse, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	body, err := json.Marshal(map[string]any{
		"operation": operation,
		"vaultId":   vaultID,
		"params":    params,
		"timeoutMs": int(timeout.Milliseconds()),
	})
	if err != nil {
		return &vault.OperationResponse{Success: false, Error: err.Error()}, nil
	}

	b.logger.Debug("Sending RPC operation", "operation", operation, "vault", vaultID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return &vault.OperationResponse{Success: false, Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")
	b.setAuth(req)

	resp, err := b.client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			b.logger.Error("Connection refused - no MCP server running")
			return &vault.OperationResponse{
				Success: false,
				Error:   "Connection refused - no MCP server running",
			}, nil
		}
		b.logger.Error("RPC request failed", "operation", operation, "error", err)
		return &vault.OperationResponse{Success: false, Error: err.Error()}, nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		b.logger.Error("Authentication failed - token mismatch")
		return &vault.OperationResponse{
			Success: false,
			Error:   "Authentication failed - token mismatch",
		}, nil
	case http.StatusNotFound:
		b.logger.Warn("No connected vault found", "vault", vaultID)
		return nil, nil
	case http.StatusGatewayTimeout:
		b.logger.Error("RPC request timeout", "operation", operation)
		return &vault.OperationResponse{
			Success: false,
			Error:   fmt.Sprintf("Request timeout after %ss", strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)),
		}, nil
	case http.StatusOK:
	default:
		text, _ := io.ReadAll(resp.Body)
		b.logger.Error("RPC failed", "status", resp.StatusCode, "body", string(text))
		return &vault.OperationResponse{
			Success: false,
			Error:   fmt.Sprintf("RPC failed with status %d", resp.StatusCode),
		}, nil
	}

	var result rpcResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &vault.OperationResponse{Success: false, Error: err.Error()}, nil
	}

	return &vault.OperationResponse{
		Success:   result.Success,
		Payload:   result.Result,
		Error:     result.Error,
		Timestamp: result.Timestamp,
	}, nil
}

// GetConnectedVaults enumerates vaults via the remote health endpoint.
func (b *Bridge) GetConnectedVaults() []string {
	if info := b.health(); info != nil {
		return info.ConnectedVaults
	}
	return nil
}

// GetActiveVault reads the active vault via the remote health endpoint.
func (b *Bridge) GetActiveVault() string {
	if info := b.health(); info != nil {
		return info.ActiveVault
	}
	return ""
}

// GetAllVaultInfo synthesizes minimal vault info; the remote health endpoint
// does not expose registration payloads.
func (b *Bridge) GetAllVaultInfo() map[string]map[string]any {
	info := b.health()
	if info == nil {
		return map[string]map[string]any{}
	}
	result := make(map[string]map[string]any, len(info.ConnectedVaults))
	for _, id := range info.ConnectedVaults {
		result[id] = map[string]any{
			"vaultId":  id,
			"isActive": id == info.ActiveVault,
		}
	}
	return result
}

func (b *Bridge) health() *healthInfo {
	req, err := http.NewRequest(http.MethodGet, b.baseURL+"/health", nil)
	if err != nil {
		return nil
	}
	b.setAuth(req)

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Error("Health check error", "error", err)
		return nil
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var info healthInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil
		}
		return &info
	case http.StatusUnauthorized:
		b.logger.Error("Health check authentication failed")
		return nil
	default:
		b.logger.Error("Health check failed", "status", resp.StatusCode)
		return nil
	}
}
