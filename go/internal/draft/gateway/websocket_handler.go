package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/banpick/go/internal/auth"
)

// WebSocketHandler handles WebSocket upgrade requests for room subscriptions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	verifier          *auth.Verifier
}

func NewWebSocketHandler(cm *ConnectionManager, verifier *auth.Verifier) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		verifier:          verifier,
	}
}

// HandleRoomConnection subscribes the caller to ?room_id=. Spectators
// without a token are accepted as anonymous.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	identity := auth.IdentityFrom(r.Context())
	if identity == "" {
		identity = "anonymous"
	}

	if err := h.connectionManager.Subscribe(w, r, identity, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("identity", identity).
			Msg("failed to subscribe WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.connectionManager.Stats()); err != nil {
		log.Error().Err(err).Msg("failed to write connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/ws/room", tokenFromQuery(h.verifier.Middleware(http.HandlerFunc(h.HandleRoomConnection))))
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

// tokenFromQuery moves ?access_token= into the Authorization header.
// Browsers cannot set headers on a websocket handshake.
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := r.URL.Query().Get("access_token"); token != "" && r.Header.Get("Authorization") == "" {
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
		}
		next.ServeHTTP(w, r)
	})
}
