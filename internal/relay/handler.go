package relay

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	"collab-board/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Editors are unauthenticated; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades /ws requests into hub sessions.
type WebSocketHandler struct {
	hub *Hub
}

func NewWebSocketHandler(hub *Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.String("remote.addr", r.RemoteAddr),
	)
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket upgrade failed")
		middleware.AddSpanError(ctx, err)
		return
	}

	session := newSession(conn, h.hub, r.RemoteAddr)
	span.SetAttributes(attribute.String("session.id", session.ID))
	h.hub.Register(session)

	// The request context ends with this handler; the pumps outlive it.
	go session.WritePump()
	go session.ReadPump(context.WithoutCancel(ctx))
}
