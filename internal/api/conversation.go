package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/chat"
	"github.com/lalith-99/convo/internal/middleware"
	"github.com/lalith-99/convo/internal/models"
	"go.uber.org/zap"
)

// ConversationHandler serves the staff console's conversation endpoints.
type ConversationHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewConversationHandler(svc *chat.Service, logger *zap.Logger) *ConversationHandler {
	return &ConversationHandler{svc: svc, logger: logger}
}

// Owner is optional. Staff-opened conversations about a project or client
// carry one; internal team threads usually don't.
type createConversationRequest struct {
	Title      string         `json:"title" binding:"required"`
	OwnerType  string         `json:"owner_type"`
	OwnerID    string         `json:"owner_id"`
	Priority   string         `json:"priority"`
	IsInternal bool           `json:"is_internal"`
	Tags       []string       `json:"tags"`
	Metadata   map[string]any `json:"metadata"`
}

// Create handles POST /v1/conversations
func (h *ConversationHandler) Create(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := models.NewConversation{
		Title:      req.Title,
		Priority:   models.Priority(req.Priority),
		IsInternal: req.IsInternal,
		Tags:       req.Tags,
		Metadata:   req.Metadata,
	}
	if req.OwnerType != "" || req.OwnerID != "" {
		owner, err := models.ParseOwnerRef(req.OwnerType, req.OwnerID)
		if err != nil {
			respondError(c, h.logger, err, "failed to create conversation")
			return
		}
		in.Owner = owner
	}
	creator := middleware.GetUserID(c)
	in.CreatedBy = &creator

	conv, err := h.svc.CreateConversation(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err, "failed to create conversation")
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// List handles GET /v1/conversations?status=&assigned_to=&participant=&limit=&offset=
//
// assigned_to and participant accept a user id or "me".
func (h *ConversationHandler) List(c *gin.Context) {
	me := middleware.GetUserID(c)
	var filter models.ConversationFilter

	if s := c.Query("status"); s != "" {
		status, err := models.ParseStatus(s)
		if err != nil {
			respondError(c, h.logger, err, "failed to list conversations")
			return
		}
		filter.Status = status
	}

	var ok bool
	if filter.AssignedTo, ok = userQuery(c, "assigned_to", me); !ok {
		return
	}
	if filter.Participant, ok = userQuery(c, "participant", me); !ok {
		return
	}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + name + "' parameter"})
			return
		}
		*dst = n
	}

	convs, err := h.svc.ListConversations(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err, "failed to list conversations")
		return
	}
	c.JSON(http.StatusOK, convs)
}

func userQuery(c *gin.Context, name string, me uuid.UUID) (*uuid.UUID, bool) {
	v := c.Query(name)
	switch v {
	case "":
		return nil, true
	case "me":
		return &me, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + name + "' parameter"})
		return nil, false
	}
	return &id, true
}

// GetByID handles GET /v1/conversations/:id
func (h *ConversationHandler) GetByID(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	conv, err := h.svc.GetConversation(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "failed to get conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetStatus handles PATCH /v1/conversations/:id/status
func (h *ConversationHandler) SetStatus(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		respondError(c, h.logger, err, "failed to update status")
		return
	}
	conv, err := h.svc.SetStatus(c.Request.Context(), id, status)
	if err != nil {
		respondError(c, h.logger, err, "failed to update status")
		return
	}
	c.JSON(http.StatusOK, conv)
}

// A null assignee_id unassigns.
type assignRequest struct {
	AssigneeID *uuid.UUID `json:"assignee_id"`
}

// Assign handles PATCH /v1/conversations/:id/assignee
func (h *ConversationHandler) Assign(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.svc.Assign(c.Request.Context(), id, req.AssigneeID)
	if err != nil {
		respondError(c, h.logger, err, "failed to assign conversation")
		return
	}
	c.JSON(http.StatusOK, conv)
}

type priorityRequest struct {
	Priority string `json:"priority" binding:"required"`
}

// SetPriority handles PATCH /v1/conversations/:id/priority
func (h *ConversationHandler) SetPriority(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req priorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	priority, err := models.ParsePriority(req.Priority)
	if err != nil {
		respondError(c, h.logger, err, "failed to update priority")
		return
	}
	conv, err := h.svc.SetPriority(c.Request.Context(), id, priority)
	if err != nil {
		respondError(c, h.logger, err, "failed to update priority")
		return
	}
	c.JSON(http.StatusOK, conv)
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

// SetTags handles PUT /v1/conversations/:id/tags. The list replaces the
// current tags; an empty list clears them.
func (h *ConversationHandler) SetTags(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req tagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conv, err := h.svc.SetTags(c.Request.Context(), id, req.Tags)
	if err != nil {
		respondError(c, h.logger, err, "failed to update tags")
		return
	}
	c.JSON(http.StatusOK, conv)
}

// MarkRead handles POST /v1/conversations/:id/read
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}
	marked, err := h.svc.MarkConversationRead(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, err, "failed to mark conversation read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}
