package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"codepair/pkg/interfaces"
	"codepair/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's proxy layer.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Envelope is the frame format in both directions. Outbound frames carry a
// session snapshot or an error; inbound frames carry a field patch.
type Envelope struct {
	Type    string              `json:"type"`
	Session *types.Session      `json:"session,omitempty"`
	Patch   *types.SessionPatch `json:"patch,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// Frame types.
const (
	FrameSession = "session"
	FramePatch   = "patch"
	FrameError   = "error"
)

// Handler joins WebSocket participants to shared sessions. Each connection
// is initialized against the store, subscribed to the session's snapshot
// stream, and fed inbound patches through the store's last-writer-wins
// merge. Snapshots stamped by the connection's own participant are not
// echoed back.
type Handler struct {
	registry    *Registry
	store       interfaces.SessionStore
	broker      interfaces.SessionBroker
	rateLimiter *RateLimiter
}

// NewHandler creates a WebSocket handler.
func NewHandler(registry *Registry, store interfaces.SessionStore, broker interfaces.SessionBroker, rateLimiter *RateLimiter) *Handler {
	return &Handler{
		registry:    registry,
		store:       store,
		broker:      broker,
		rateLimiter: rateLimiter,
	}
}

// HandleWebSocket validates the join request, upgrades the connection and
// wires it into the session. Validation happens before the upgrade so bad
// requests get proper HTTP status codes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participant_id")
	role := r.URL.Query().Get("role")
	sessionKey := r.URL.Query().Get("session_key")
	language := r.URL.Query().Get("language")

	if participantID == "" || role == "" || sessionKey == "" {
		http.Error(w, "Missing required query parameters: participant_id, role, session_key", http.StatusBadRequest)
		return
	}
	if !types.IsValidParticipantID(participantID) {
		http.Error(w, "Invalid participant_id format", http.StatusBadRequest)
		return
	}
	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'candidate' or 'interviewer'", http.StatusBadRequest)
		return
	}
	if !types.IsValidSessionKey(sessionKey) {
		http.Error(w, "Invalid session_key format", http.StatusBadRequest)
		return
	}
	if language == "" {
		language = types.LanguageJavaScript
	}
	if !types.IsValidLanguage(language) {
		http.Error(w, "Invalid language", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	wsConn.SetCredentials(participantID, role, sessionKey)

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	// Subscribe before Initialize so a snapshot committed in between is
	// not lost.
	snapshots, cancelSub, err := h.broker.Subscribe(sessionKey)
	if err != nil {
		log.Printf("Failed to subscribe connection to session %s: %v", sessionKey, err)
		h.registry.UnregisterConnection(wsConn)
		_ = wsConn.Close()
		return
	}

	session, err := h.store.Initialize(r.Context(), sessionKey, "", language, participantID)
	if err != nil {
		log.Printf("Failed to initialize session %s: %v", sessionKey, err)
		cancelSub()
		h.registry.UnregisterConnection(wsConn)
		_ = wsConn.Close()
		return
	}

	if err := wsConn.WriteJSON(Envelope{Type: FrameSession, Session: session}); err != nil {
		log.Printf("Failed to send initial session state: %v", err)
		cancelSub()
		h.registry.UnregisterConnection(wsConn)
		_ = wsConn.Close()
		return
	}

	go h.forwardSnapshots(wsConn, snapshots)
	go h.handleConnection(wsConn, cancelSub)
}

// forwardSnapshots relays committed snapshots to the client, suppressing
// echoes of the client's own writes.
func (h *Handler) forwardSnapshots(conn *Connection, snapshots <-chan *types.Session) {
	participantID := conn.GetParticipantID()

	for snapshot := range snapshots {
		if snapshot.LastUpdatedBy == participantID {
			continue
		}
		if err := conn.WriteJSON(Envelope{Type: FrameSession, Session: snapshot}); err != nil {
			return
		}
	}
}

// handleConnection runs the read pump with heartbeat monitoring and feeds
// inbound patches into the store.
func (h *Handler) handleConnection(conn *Connection, cancelSub func()) {
	defer func() {
		cancelSub()
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		h.handleFrame(conn, data)
	}
}

// handleFrame applies one inbound frame. Errors go back to the sender only;
// other participants never see a peer's rejected writes.
func (h *Handler) handleFrame(conn *Connection, data []byte) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.sendError(conn, "malformed frame")
		return
	}

	if envelope.Type != FramePatch || envelope.Patch == nil {
		h.sendError(conn, "unsupported frame type")
		return
	}

	participantID := conn.GetParticipantID()
	if !h.rateLimiter.Allow(participantID) {
		h.sendError(conn, "rate limit exceeded")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := h.store.Patch(ctx, conn.GetSessionKey(), envelope.Patch, participantID); err != nil {
		log.Printf("Patch from %s rejected: %v", participantID, err)
		h.sendError(conn, err.Error())
	}
}

func (h *Handler) sendError(conn *Connection, message string) {
	if err := conn.WriteJSON(Envelope{Type: FrameError, Error: message}); err != nil {
		log.Printf("Failed to send error frame: %v", err)
	}
}
