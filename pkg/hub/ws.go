package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soundprediction/megamem/pkg/vault"
)

// closeAuthFailed is the close code the Obsidian plugin expects when its
// token is rejected.
const closeAuthFailed = 4001

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Peer checks happen in the localhost middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one connected Obsidian plugin.
type client struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) sendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// wsMessage is the envelope plugins send over the socket.
type wsMessage struct {
	Type      string         `json:"type"`
	ID        string         `json:"id"`
	Success   bool           `json:"success"`
	Payload   map[string]any `json:"payload"`
	Error     string         `json:"error"`
	Timestamp any            `json:"timestamp"`
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed", "error", err)
		return
	}

	authRequired := s.authToken != ""
	token := requestToken(c)
	tokenValid := !authRequired || token == s.authToken

	s.logger.Info("WebSocket auth", "required", authRequired, "valid", tokenValid)

	if !tokenValid {
		s.logger.Warn("Authentication failed - invalid or missing WebSocket token")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeAuthFailed, "Authentication failed"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	cl := &client{
		id:   uuid.New().String(),
		conn: conn,
	}

	s.mu.Lock()
	s.clients[cl.id] = cl
	s.mu.Unlock()

	s.logger.Info("New WebSocket client connected", "client_id", cl.id)

	if err := cl.sendJSON(map[string]any{
		"type":      "connected",
		"clientId":  cl.id,
		"timestamp": timestamp(),
	}); err != nil {
		s.logger.Error("Failed to send welcome message", "client_id", cl.id, "error", err)
	}

	defer func() {
		conn.Close()
		s.removeClient(cl.id)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Error("WebSocket read error", "client_id", cl.id, "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Error("JSON decode error from client", "client_id", cl.id, "error", err)
			_ = cl.sendJSON(map[string]any{"type": "error", "error": "Invalid JSON"})
			continue
		}
		s.handleMessage(cl, &msg)
	}
}

func (s *Server) handleMessage(cl *client, msg *wsMessage) {
	s.logger.Debug("Processing message", "type", msg.Type, "client_id", cl.id)

	switch {
	case msg.Type == "register":
		s.registerVault(cl, msg.Payload)

	case msg.Type == "pong":
		// Keepalive reply, nothing to do.

	case strings.Contains(msg.Type, "response") && msg.ID != "":
		s.resolveResponse(cl, msg)

	default:
		_ = cl.sendJSON(map[string]any{
			"type":  "error",
			"error": fmt.Sprintf("Unknown message type: %s", msg.Type),
		})
	}
}

// registerVault records the plugin's vault identity and promotes it to
// active when no vault is active yet.
func (s *Server) registerVault(cl *client, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}

	vaultName, _ := payload["vaultName"].(string)
	vaultID := vaultName
	if vaultID == "" {
		vaultID = "vault_" + cl.id
	}

	s.mu.Lock()
	s.vaultInfo[cl.id] = payload
	s.clientToVault[cl.id] = vaultID
	s.vaultToClient[vaultID] = cl.id
	if s.activeVaultID == "" {
		s.activeVaultID = vaultID
		s.logger.Info("Set active vault", "vault", vaultID)
	}
	isActive := vaultID == s.activeVaultID
	s.mu.Unlock()

	s.logger.Info("Registered vault", "vault", vaultID, "client_id", cl.id)

	_ = cl.sendJSON(map[string]any{
		"type":     "registered",
		"success":  true,
		"vaultId":  vaultID,
		"isActive": isActive,
	})
}

// resolveResponse delivers an operation response to its waiting request.
func (s *Server) resolveResponse(cl *client, msg *wsMessage) {
	s.mu.Lock()
	req, ok := s.pending[msg.ID]
	if ok {
		delete(s.pending, msg.ID)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Warn("Received response for unknown request", "request_id", msg.ID)
		return
	}

	req.ch <- &vault.OperationResponse{
		Success:   msg.Success,
		Payload:   msg.Payload,
		Error:     msg.Error,
		Timestamp: msg.Timestamp,
	}
	s.logger.Debug("Resolved pending request", "request_id", msg.ID)
}
