package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/convo/internal/chat"
	"go.uber.org/zap"
)

// ParticipantHandler manages who follows a conversation.
// Adding and removing are idempotent.
type ParticipantHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewParticipantHandler(svc *chat.Service, logger *zap.Logger) *ParticipantHandler {
	return &ParticipantHandler{svc: svc, logger: logger}
}

// Add handles POST /v1/conversations/:id/participants/:user_id
func (h *ParticipantHandler) Add(c *gin.Context) {
	convID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	conv, err := h.svc.AddParticipant(c.Request.Context(), convID, userID)
	if err != nil {
		respondError(c, h.logger, err, "failed to add participant")
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Remove handles DELETE /v1/conversations/:id/participants/:user_id
func (h *ParticipantHandler) Remove(c *gin.Context) {
	convID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := parseUUIDParam(c, "user_id")
	if !ok {
		return
	}
	if _, err := h.svc.RemoveParticipant(c.Request.Context(), convID, userID); err != nil {
		respondError(c, h.logger, err, "failed to remove participant")
		return
	}
	c.Status(http.StatusNoContent)
}
