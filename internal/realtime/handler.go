package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aegis-sec/sentinel/internal/auth"
)

// Handler upgrades and authenticates admin WebSocket connections.
type Handler struct {
	hub      *Hub
	issuer   *auth.Issuer
	upgrader websocket.Upgrader
}

// NewHandler wires the websocket endpoints. An empty allowedOrigins list
// accepts any origin.
func NewHandler(hub *Hub, issuer *auth.Issuer, allowedOrigins []string) *Handler {
	return &Handler{
		hub:    hub,
		issuer: issuer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     buildCheckOrigin(allowedOrigins),
		},
	}
}

func buildCheckOrigin(allowedOrigins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSpace(origin)] = true
	}
	if len(allowed) == 0 || allowed["*"] {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		return allowed[r.Header.Get("Origin")]
	}
}

// ServeAdmin handles GET /ws/admin?token=... The token is verified after
// the upgrade so auth failures can answer with a policy-violation close
// frame instead of a plain HTTP error.
func (h *Handler) ServeAdmin(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	claims, err := h.issuer.VerifyAccess(r.URL.Query().Get("token"))
	if err != nil || !claims.Role.CanManageAlerts() {
		reason := "authentication failed"
		if err == nil {
			reason = "insufficient role"
		}
		deadline := time.Now().Add(writeWait)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
		conn.Close()
		return
	}

	s := &Session{
		hub:      h.hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		actorID:  claims.ActorID(),
		username: claims.Username,
	}
	h.hub.register(s)

	go s.writePump()
	go s.readPump()

	s.reply(Message{
		Type: TypeConnectionEstablished,
		Data: map[string]interface{}{
			"user": claims.Username,
			"role": claims.Role,
		},
		Timestamp: time.Now().UTC(),
	})
}

// ServeStatus handles GET /ws/status.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"active_connections": h.hub.ActiveConnections(),
		"connected_users":    h.hub.ConnectedUsers(),
	})
}
