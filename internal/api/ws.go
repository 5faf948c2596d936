package api

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/convo/internal/chat"
	"github.com/lalith-99/convo/internal/middleware"
	"github.com/lalith-99/convo/internal/realtime"
	"go.uber.org/zap"
)

// WSHandler upgrades authenticated staff connections and hands them to the
// realtime hub.
type WSHandler struct {
	hub      *realtime.Hub
	svc      *chat.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSHandler accepts any Origin when origins is empty.
func NewWSHandler(hub *realtime.Hub, svc *chat.Service, origins []string, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub: hub,
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
			},
		},
		logger: logger,
	}
}

// Serve handles GET /v1/ws
//
// Browsers cannot set headers on a websocket handshake, so the token may
// come as ?token=. Clients then send
// {"action":"subscribe","conversation_id":"..."} per conversation.
func (h *WSHandler) Serve(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := realtime.NewClient(h.hub, conn, userID)
	h.logger.Debug("websocket connected", zap.String("user_id", userID.String()))

	// Serve outlives the request context once the connection is hijacked.
	client.Serve(context.Background(), h.canSubscribe)
}

// canSubscribe lets any staff member follow any existing conversation.
func (h *WSHandler) canSubscribe(ctx context.Context, _ uuid.UUID, conversationID uuid.UUID) error {
	_, err := h.svc.GetConversation(ctx, conversationID)
	return err
}
