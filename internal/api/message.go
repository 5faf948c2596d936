package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/chat"
	"github.com/lalith-99/convo/internal/middleware"
	"github.com/lalith-99/convo/internal/models"
	"go.uber.org/zap"
)

type MessageHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewMessageHandler(svc *chat.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

// Body may be empty when attachments are present. Limits are enforced by
// the service so guests and staff share them.
type createMessageRequest struct {
	Body        string              `json:"body"`
	Type        string              `json:"type"`
	Attachments []models.Attachment `json:"attachments"`
	RecipientID *uuid.UUID          `json:"recipient_id"`
	ReplyToID   *int64              `json:"reply_to_id"`
	IsInternal  bool                `json:"is_internal"`
	Metadata    map[string]any      `json:"metadata"`
}

// Create handles POST /v1/conversations/:id/messages
func (h *MessageHandler) Create(c *gin.Context) {
	convID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgType, err := models.ParseMessageType(req.Type)
	if err != nil {
		respondError(c, h.logger, err, "failed to create message")
		return
	}

	msg, err := h.svc.SendStaffMessage(c.Request.Context(), chat.StaffMessage{
		ConversationID: convID,
		SenderID:       middleware.GetUserID(c),
		RecipientID:    req.RecipientID,
		Body:           req.Body,
		Type:           msgType,
		Attachments:    req.Attachments,
		ReplyToID:      req.ReplyToID,
		IsInternal:     req.IsInternal,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, err, "failed to create message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/conversations/:id/messages?after=123&limit=50
//
// Oldest first. "after" is the last message id the client already has.
func (h *MessageHandler) List(c *gin.Context) {
	convID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	after, limit, ok := listParams(c)
	if !ok {
		return
	}
	msgs, err := h.svc.ListMessages(c.Request.Context(), convID, after, limit)
	if err != nil {
		respondError(c, h.logger, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// ListPinned handles GET /v1/conversations/:id/pins
func (h *MessageHandler) ListPinned(c *gin.Context) {
	convID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	msgs, err := h.svc.ListPinned(c.Request.Context(), convID)
	if err != nil {
		respondError(c, h.logger, err, "failed to list pinned messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// GetByID handles GET /v1/messages/:id
func (h *MessageHandler) GetByID(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	msg, err := h.svc.GetMessage(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

type editMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// Edit handles PATCH /v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.svc.EditMessage(c.Request.Context(), id, middleware.GetUserID(c), req.Body)
	if err != nil {
		respondError(c, h.logger, err, "failed to edit message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	actor := chat.Actor{UserID: middleware.GetUserID(c), Role: middleware.GetRole(c)}
	if err := h.svc.DeleteMessage(c.Request.Context(), id, actor); err != nil {
		respondError(c, h.logger, err, "failed to delete message")
		return
	}
	c.Status(http.StatusNoContent)
}

// EditHistory handles GET /v1/messages/:id/edits
func (h *MessageHandler) EditHistory(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	edits, err := h.svc.EditHistory(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get edit history")
		return
	}
	c.JSON(http.StatusOK, edits)
}

// MarkDelivered handles POST /v1/messages/:id/delivered
func (h *MessageHandler) MarkDelivered(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	msg, err := h.svc.MarkDelivered(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to mark message delivered")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// MarkRead handles POST /v1/messages/:id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	msg, err := h.svc.MarkRead(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to mark message read")
		return
	}
	c.JSON(http.StatusOK, msg)
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

// React handles POST /v1/messages/:id/reactions
func (h *MessageHandler) React(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	change, err := h.svc.React(c.Request.Context(), id, middleware.GetUserID(c), req.Emoji)
	if err != nil {
		respondError(c, h.logger, err, "failed to add reaction")
		return
	}
	c.JSON(http.StatusOK, change)
}

// Unreact handles DELETE /v1/messages/:id/reactions/:emoji
func (h *MessageHandler) Unreact(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	change, err := h.svc.Unreact(c.Request.Context(), id, middleware.GetUserID(c), c.Param("emoji"))
	if err != nil {
		respondError(c, h.logger, err, "failed to remove reaction")
		return
	}
	c.JSON(http.StatusOK, change)
}

// Pin handles POST /v1/messages/:id/pin
func (h *MessageHandler) Pin(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	msg, err := h.svc.Pin(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to pin message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Unpin handles DELETE /v1/messages/:id/pin
func (h *MessageHandler) Unpin(c *gin.Context) {
	id, ok := parseMessageID(c)
	if !ok {
		return
	}
	msg, err := h.svc.Unpin(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to unpin message")
		return
	}
	c.JSON(http.StatusOK, msg)
}
