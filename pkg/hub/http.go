package hub

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const maxRPCPayload = 2 * 1024 * 1024

// rpcRequest is the body of a POST /rpc call from another MCP process.
type rpcRequest struct {
	Operation string         `json:"operation"`
	VaultID   string         `json:"vaultId"`
	Params    map[string]any `json:"params"`
	TimeoutMs int            `json:"timeoutMs"`
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(localhostOnlyMiddleware())
	router.Use(corsMiddleware())

	// The root path doubles as the WS endpoint for older plugin versions.
	router.GET("/ws", s.handleWebSocket)
	router.GET("/", s.handleWebSocket)
	router.GET("/health", s.handleHealth)
	router.POST("/rpc", s.handleRPC)

	return router
}

// localhostOnlyMiddleware rejects any connection whose peer is not local.
// The listener binds 127.0.0.1 already; this guards proxied setups.
func localhostOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}
		switch host {
		case "", "127.0.0.1", "::1", "localhost":
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden - localhost only"})
		}
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "*")
		c.Header("Access-Control-Allow-Methods", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestToken reads the auth token from the Authorization header with a
// query parameter fallback for the Obsidian plugin.
func requestToken(c *gin.Context) string {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.Query("token")
	}
	return token
}

func (s *Server) authorized(c *gin.Context) bool {
	return s.authToken == "" || requestToken(c) == s.authToken
}

// handleHealth reports server status for MCP process discovery.
func (s *Server) handleHealth(c *gin.Context) {
	if !s.authorized(c) {
		s.logger.Warn("Health authentication failed - invalid or missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	s.mu.Lock()
	clientIDs := make([]string, 0, len(s.clients))
	for id := range s.clients {
		clientIDs = append(clientIDs, id)
	}
	connectedVaults := make([]string, 0, len(s.vaultToClient))
	for id := range s.vaultToClient {
		connectedVaults = append(connectedVaults, id)
	}
	activeVault := s.activeVaultID
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"clients":         len(clientIDs),
		"clientIds":       clientIDs,
		"connectedVaults": connectedVaults,
		"activeVault":     activeVault,
		"timestamp":       timestamp(),
	})
}

// handleRPC executes a vault file operation on behalf of another MCP process.
func (s *Server) handleRPC(c *gin.Context) {
	if !s.authorized(c) {
		s.logger.Warn("RPC authentication failed - invalid or missing token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if c.Request.ContentLength > maxRPCPayload {
		s.logger.Warn("RPC payload too large", "bytes", c.Request.ContentLength)
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
		return
	}
	// Chunked bodies carry no Content-Length; cap them while reading.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRPCPayload)

	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.Warn("RPC payload too large", "bytes", tooLarge.Limit)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if req.Operation == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing operation"})
		return
	}

	timeout := 20 * time.Second
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	if timeout > 30*time.Second {
		timeout = 30 * time.Second
	}

	s.logger.Debug("Executing RPC operation", "operation", req.Operation, "vault", req.VaultID, "timeout", timeout)

	result, err := s.RequestFileOperation(c.Request.Context(), req.VaultID, req.Operation, req.Params, timeout)
	if err != nil {
		s.logger.Error("RPC request failed", "operation", req.Operation, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   fmt.Sprintf("No connected vault found: %s", req.VaultID),
		})
		return
	}
	if !result.Success && strings.HasPrefix(result.Error, "Request timeout") {
		s.logger.Error("RPC request timeout", "operation", req.Operation)
		c.JSON(http.StatusGatewayTimeout, gin.H{"success": false, "error": "Request timeout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   result.Success,
		"result":    result.Payload,
		"error":     result.Error,
		"timestamp": result.Timestamp,
	})
}
