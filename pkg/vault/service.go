// Package vault exposes Obsidian vault file operations over whichever
// transport this process ended up with: the in-process WebSocket hub or the
// HTTP RPC bridge to another process's hub.
package vault

import (
	"context"
	"time"
)

// OperationResponse is the envelope a vault returns for one file operation.
type OperationResponse struct {
	Success   bool   `json:"success"`
	Payload   any    `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp any    `json:"timestamp,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// ToMap renders the envelope the way tool results are reported.
func (r *OperationResponse) ToMap() map[string]any {
	m := map[string]any{
		"success": r.Success,
	}
	if r.Payload != nil {
		m["payload"] = r.Payload
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Timestamp != nil {
		m["timestamp"] = r.Timestamp
	}
	return m
}

// PayloadMap returns the payload as a map when it is one.
func (r *OperationResponse) PayloadMap() map[string]any {
	if m, ok := r.Payload.(map[string]any); ok {
		return m
	}
	return nil
}

// Service is what FileTools needs from a vault transport. The hub server
// satisfies it directly; the RPC bridge satisfies it over HTTP.
type Service interface {
	// RequestFileOperation runs one operation against a vault. A nil
	// response with nil error means no client is connected for the vault.
	RequestFileOperation(ctx context.Context, vaultID, operation string, params map[string]any, timeout time.Duration) (*OperationResponse, error)

	// GetConnectedVaults lists registered vault ids.
	GetConnectedVaults() []string

	// GetActiveVault returns the active vault id, or "".
	GetActiveVault() string

	// GetAllVaultInfo returns registration info per connected vault.
	GetAllVaultInfo() map[string]map[string]any
}
