package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/convo/internal/models"
	"go.uber.org/zap"
)

// respondError maps a domain error to a status code. Anything that is not
// a known domain error is logged and reported as a generic 500 with msg.
func respondError(c *gin.Context, logger *zap.Logger, err error, msg string) {
	var (
		verr *models.ValidationError
		aerr *models.AuthorizationError
	)
	switch {
	case errors.As(err, &verr):
		body := gin.H{"error": verr.Reason}
		if verr.Field != "" {
			body["field"] = verr.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &aerr):
		c.JSON(http.StatusForbidden, gin.H{"error": aerr.Reason})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(msg,
			zap.Error(err),
			zap.String("path", c.FullPath()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func parseMessageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return 0, false
	}
	return id, true
}

// listParams reads ?after=<message id>&limit=<n>. Zero means unset.
func listParams(c *gin.Context) (after int64, limit int, ok bool) {
	var err error
	if a := c.Query("after"); a != "" {
		after, err = strconv.ParseInt(a, 10, 64)
		if err != nil || after < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'after' parameter"})
			return 0, 0, false
		}
	}
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return 0, 0, false
		}
	}
	return after, limit, true
}
