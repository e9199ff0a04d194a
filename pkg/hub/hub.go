// Package hub runs the vault WebSocket server one MCP process hosts on
// behalf of all others. Obsidian plugins connect and register here; file
// operations are correlated over the socket with per-request ids.
package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundprediction/megamem/pkg/vault"
)

// Server owns the WebSocket clients, the vault registry, and the HTTP
// surface other MCP processes call.
type Server struct {
	port      int
	authToken string
	logger    *slog.Logger

	httpServer *http.Server

	mu            sync.Mutex
	clients       map[string]*client
	vaultInfo     map[string]map[string]any
	clientToVault map[string]string
	vaultToClient map[string]string
	activeVaultID string
	pending       map[string]*pendingRequest
}

// pendingRequest correlates one in-flight file operation with the client
// that must answer it.
type pendingRequest struct {
	ch       chan *vault.OperationResponse
	clientID string
}

// NewServer creates a hub for the given port. An empty auth token disables
// authentication.
func NewServer(port int, authToken string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		port:      port,
		authToken: authToken,
		logger:    logger,

		clients:       make(map[string]*client),
		vaultInfo:     make(map[string]map[string]any),
		clientToVault: make(map[string]string),
		vaultToClient: make(map[string]string),
		pending:       make(map[string]*pendingRequest),
	}
}

// Start binds the listener and serves in the background. A port conflict
// surfaces here as the bind error, which the caller uses for leader election.
func (s *Server) Start() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}

	go func() {
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			s.logger.Error("Hub server stopped", "error", serveErr)
		}
	}()

	s.logger.Info("WebSocket server started", "port", s.port)
	return nil
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Port returns the port the hub serves on.
func (s *Server) Port() int {
	return s.port
}

// RequestFileOperation sends an operation to a vault's plugin and waits for
// the correlated response. A nil response with a nil error means no client is
// connected for the vault. Timeouts come back as a failed response rather
// than an error so callers can forward the envelope.
func (s *Server) RequestFileOperation(ctx context.Context, vaultID, operation string, params map[string]any, timeout time.Duration) (*vault.OperationResponse, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s.mu.Lock()
	clientID := s.vaultToClient[vaultID]
	if clientID == "" {
		// Legacy lookup by registered vault name or raw client id.
		for cid, info := range s.vaultInfo {
			if name, _ := info["vaultName"].(string); name == vaultID || cid == vaultID {
				clientID = cid
				break
			}
		}
	}
	c := s.clients[clientID]
	if c == nil {
		s.mu.Unlock()
		s.logger.Warn("No connected client found for vault", "vault", vaultID)
		return nil, nil
	}

	requestID := uuid.New().String()
	ch := make(chan *vault.OperationResponse, 1)
	s.pending[requestID] = &pendingRequest{ch: ch, clientID: clientID}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, requestID)
		s.mu.Unlock()
	}()

	if err := c.sendJSON(map[string]any{
		"id":      requestID,
		"type":    operation,
		"payload": params,
	}); err != nil {
		return &vault.OperationResponse{
			Success:   false,
			Error:     err.Error(),
			RequestID: requestID,
		}, nil
	}
	s.logger.Debug("Sent file operation request", "request_id", requestID, "vault", vaultID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp == nil {
			return &vault.OperationResponse{
				Success:   false,
				Error:     "Client disconnected",
				RequestID: requestID,
			}, nil
		}
		s.logger.Debug("Received response", "request_id", requestID)
		return resp, nil
	case <-timer.C:
		s.logger.Error("Timeout waiting for response", "request_id", requestID, "vault", vaultID)
		return &vault.OperationResponse{
			Success:   false,
			Error:     fmt.Sprintf("Request timeout after %ss", formatSeconds(timeout)),
			RequestID: requestID,
		}, nil
	case <-ctx.Done():
		return &vault.OperationResponse{
			Success:   false,
			Error:     ctx.Err().Error(),
			RequestID: requestID,
		}, nil
	}
}

// GetActiveVault returns the currently active vault id.
func (s *Server) GetActiveVault() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeVaultID
}

// SetActiveVault switches the active vault. Fails if the vault has no
// connected client.
func (s *Server) SetActiveVault(vaultID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vaultToClient[vaultID]; !ok {
		s.logger.Warn("Cannot set active vault - vault not connected", "vault", vaultID)
		return false
	}
	s.activeVaultID = vaultID
	s.logger.Info("Active vault set", "vault", vaultID)
	return true
}

// GetConnectedVaults lists all registered vault ids.
func (s *Server) GetConnectedVaults() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	vaults := make([]string, 0, len(s.vaultToClient))
	for id := range s.vaultToClient {
		vaults = append(vaults, id)
	}
	return vaults
}

// GetVaultInfo returns a vault's registration payload annotated with its ids
// and active flag, or nil if not connected.
func (s *Server) GetVaultInfo(vaultID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vaultInfoLocked(vaultID)
}

func (s *Server) vaultInfoLocked(vaultID string) map[string]any {
	clientID, ok := s.vaultToClient[vaultID]
	if !ok {
		return nil
	}
	payload, ok := s.vaultInfo[clientID]
	if !ok {
		return nil
	}
	info := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		info[k] = v
	}
	info["vaultId"] = vaultID
	info["clientId"] = clientID
	info["isActive"] = vaultID == s.activeVaultID
	return info
}

// GetAllVaultInfo returns info for every connected vault keyed by vault id.
func (s *Server) GetAllVaultInfo() map[string]map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]map[string]any, len(s.vaultToClient))
	for vaultID := range s.vaultToClient {
		if info := s.vaultInfoLocked(vaultID); info != nil {
			result[vaultID] = info
		}
	}
	return result
}

// removeClient tears down a disconnected client's registrations, promotes a
// remaining vault to active if needed, and cancels pending requests.
func (s *Server) removeClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.clients, clientID)
	delete(s.vaultInfo, clientID)

	if vaultID, ok := s.clientToVault[clientID]; ok {
		delete(s.clientToVault, clientID)
		delete(s.vaultToClient, vaultID)

		if s.activeVaultID == vaultID {
			s.activeVaultID = ""
			for remaining := range s.vaultToClient {
				s.activeVaultID = remaining
				break
			}
			if s.activeVaultID != "" {
				s.logger.Info("Switched active vault", "vault", s.activeVaultID)
			} else {
				s.logger.Info("No active vault - all vaults disconnected")
			}
		}
	}

	for requestID, req := range s.pending {
		if req.clientID != clientID {
			continue
		}
		close(req.ch)
		delete(s.pending, requestID)
		s.logger.Debug("Cancelled pending request for disconnected client", "request_id", requestID)
	}

	s.logger.Info("Client disconnected", "client_id", clientID)
}

// formatSeconds renders a duration the way the timeout message expects,
// without a trailing unit or exponent.
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func timestamp() string {
	return strconv.FormatFloat(float64(time.Now().UnixNano())/1e9, 'f', 6, 64)
}
