package webchat

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/ChelochoX/tuvendedor-back-sub000/internal/conversation"
	"github.com/ChelochoX/tuvendedor-back-sub000/internal/observability/metrics"
	"github.com/ChelochoX/tuvendedor-back-sub000/pkg/logging"
)

// Handler serves the web chat widget endpoints. Each visitor gets a session
// identifier that becomes the conversation's external identifier on the
// "web" channel.
type Handler struct {
	engine  conversation.TurnHandler
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
}

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "ping"
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string `json:"type"` // "message", "session", "pong", "error"
	Text      string `json:"text,omitempty"`
	Role      string `json:"role,omitempty"` // "assistant"
	SessionID string `json:"session_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// NewHandler creates a web chat handler over the given engine. m may be nil.
func NewHandler(engine conversation.TurnHandler, logger *logging.Logger, m *metrics.ConversationMetrics) *Handler {
	if engine == nil {
		panic("webchat: turn handler required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		engine:  engine,
		logger:  logger,
		metrics: m,
	}
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleWebSocket upgrades to WebSocket and handles real-time messaging.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = generateSessionID()
	}

	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:      "session",
		SessionID: sessionID,
	})

	h.logger.Info("webchat: connection opened", "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sessionID, "error", err)
			return
		}

		if msg.Type == "ping" {
			_ = websocket.JSON.Send(conn, OutboundMessage{Type: "pong"})
			continue
		}

		if msg.Type != "message" || strings.TrimSpace(msg.Text) == "" {
			continue
		}

		reply, err := h.runTurn(r.Context(), sessionID, msg.Text)
		if err != nil {
			_ = websocket.JSON.Send(conn, OutboundMessage{
				Type: "error",
				Text: "Disculpá, tuvimos un inconveniente. Intentá de nuevo en unos minutos.",
			})
			continue
		}

		_ = websocket.JSON.Send(conn, OutboundMessage{
			Type:      "message",
			Role:      "assistant",
			Text:      reply,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func (h *Handler) runTurn(ctx context.Context, sessionID, text string) (string, error) {
	reply, err := h.engine.HandleInboundMessage(ctx, conversation.ChannelWeb, sessionID, text)
	if err != nil {
		h.logger.Error("webchat: turn failed", "session_id", sessionID, "error", err)
		h.metrics.ObserveInbound(string(conversation.ChannelWeb), "error")
		return "", err
	}
	h.metrics.ObserveInbound(string(conversation.ChannelWeb), "ok")
	return reply, nil
}

// HandleMessage is the HTTP fallback for widgets without WebSocket support.
// It runs the turn synchronously and returns the reply.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = generateSessionID()
	}

	reply, err := h.runTurn(r.Context(), req.SessionID, req.Text)
	if err != nil {
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"session_id": req.SessionID,
		"reply":      reply,
	})
}
