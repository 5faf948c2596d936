package api

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/convo/internal/middleware"
	"github.com/lalith-99/convo/internal/models"
	"github.com/lalith-99/convo/internal/repository"
	"go.uber.org/zap"
)

// UserHandler serves staff profiles.
type UserHandler struct {
	repo   repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(repo repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{repo: repo, logger: logger}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	userID := middleware.GetUserID(c)

	user, err := h.repo.GetByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get user", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user"})
		return
	}

	// A valid token for a user that no longer exists.
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// List handles GET /v1/users?role=agent
//
// The staff directory the console uses to pick assignees. Without a role
// filter it returns every staff role.
func (h *UserHandler) List(c *gin.Context) {
	roles := models.StaffRoles
	if role := c.Query("role"); role != "" {
		if !slices.Contains(models.StaffRoles, role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}
		roles = []string{role}
	}

	users, err := h.repo.ListByRoles(c.Request.Context(), roles)
	if err != nil {
		h.logger.Error("failed to list users", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}
