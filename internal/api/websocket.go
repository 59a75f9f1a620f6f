package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"mrsh/internal/apierr"
	"mrsh/internal/rpc"
	"mrsh/internal/ws"
)

type WebSocketHandler struct {
	hub            *ws.Hub
	dispatcher     ws.Dispatcher
	auth           rpc.Authorizer
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, dispatcher ws.Dispatcher, auth rpc.Authorizer, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:            hub,
		dispatcher:     dispatcher,
		auth:           auth,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin lets non-browser clients (no Origin header) through and holds
// browsers to the allowlist.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originAllowed(origin, h.allowedOrigins)
}

// ServeWS authenticates before upgrading so a bad token never gets a
// connection.
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, apierr.MissingArgument("token"))
		return
	}

	user, err := h.auth.Authorize(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, apierr.ErrInvalidToken)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "component", "api", "error", err)
		return
	}

	client := ws.NewClient(h.hub, conn, h.dispatcher, user, token)
	if err := h.hub.Connect(r.Context(), client); err != nil {
		slog.Error("registering websocket client failed", "component", "api", "user_id", user.ID, "error", err)
		client.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
