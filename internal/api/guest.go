package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/convo/internal/chat"
	"github.com/lalith-99/convo/internal/middleware"
	"github.com/lalith-99/convo/internal/models"
	"go.uber.org/zap"
)

// GuestHandler serves the public chat widget. Every route runs behind
// middleware.GuestSession, which resolves the caller's session id.
type GuestHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewGuestHandler(svc *chat.Service, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{svc: svc, logger: logger}
}

func clientInfo(c *gin.Context) chat.ClientInfo {
	return chat.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

type guestMessageRequest struct {
	Body        string              `json:"body"`
	Attachments []models.Attachment `json:"attachments"`
	Metadata    map[string]any      `json:"metadata"`
}

// Send handles POST /v1/guest/messages
//
// The first message opens the guest's conversation; the response says
// whether it did.
func (h *GuestHandler) Send(c *gin.Context) {
	var req guestMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.SendGuestMessage(c.Request.Context(), chat.GuestMessage{
		SessionID:   middleware.GetGuestSessionID(c),
		Client:      clientInfo(c),
		Body:        req.Body,
		Attachments: req.Attachments,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, res)
}

// History handles GET /v1/guest/messages?after=&limit=
func (h *GuestHandler) History(c *gin.Context) {
	after, limit, ok := listParams(c)
	if !ok {
		return
	}
	hist, err := h.svc.GuestHistory(c.Request.Context(), middleware.GetGuestSessionID(c), clientInfo(c), after, limit)
	if err != nil {
		respondError(c, h.logger, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, hist)
}

// Session handles GET /v1/guest/session
func (h *GuestHandler) Session(c *gin.Context) {
	view, err := h.svc.GuestSession(c.Request.Context(), middleware.GetGuestSessionID(c), clientInfo(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to load session")
		return
	}
	c.JSON(http.StatusOK, view)
}

type guestProfileRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	InquiryType string `json:"inquiry_type"`
}

// UpdateProfile handles PUT /v1/guest/profile
func (h *GuestHandler) UpdateProfile(c *gin.Context) {
	var req guestProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	guest, err := h.svc.UpdateGuestProfile(c.Request.Context(), middleware.GetGuestSessionID(c), clientInfo(c), models.GuestProfile{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		InquiryType: models.InquiryType(req.InquiryType),
	})
	if err != nil {
		respondError(c, h.logger, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, guest)
}
