package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/convo/internal/chat"
	"github.com/lalith-99/convo/internal/middleware"
	"github.com/lalith-99/convo/internal/realtime"
	"github.com/lalith-99/convo/internal/repository"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig carries everything the HTTP layer needs.
type RouterConfig struct {
	Service *chat.Service
	Store   *repository.Store
	Hub     *realtime.Hub
	Logger  *zap.Logger

	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string

	// GuestLimiter is nil when rate limiting is disabled.
	GuestLimiter *middleware.RateLimiter

	// Health reports backend reachability. Nil means always healthy.
	Health func(ctx context.Context) error
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS(cfg.CORSOrigins))

	// Public: load balancers and Prometheus hit these without credentials.
	r.GET("/v1/health", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(c.Request.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := NewAuthHandler(cfg.Store.Users, cfg.JWTSecret, cfg.TokenTTL, logger)
	r.POST("/v1/auth/signup", authHandler.Signup)
	r.POST("/v1/auth/login", authHandler.Login)

	guestHandler := NewGuestHandler(cfg.Service, logger)
	guest := r.Group("/v1/guest")
	guest.Use(middleware.GuestSession())
	guest.Use(cfg.GuestLimiter.MiddlewareByKey(middleware.GuestKey))
	guest.POST("/messages", guestHandler.Send)
	guest.GET("/messages", guestHandler.History)
	guest.GET("/session", guestHandler.Session)
	guest.PUT("/profile", guestHandler.UpdateProfile)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	userHandler := NewUserHandler(cfg.Store.Users, logger)
	v1.GET("/users/me", userHandler.GetMe)
	v1.GET("/users", userHandler.List)

	convHandler := NewConversationHandler(cfg.Service, logger)
	v1.POST("/conversations", convHandler.Create)
	v1.GET("/conversations", convHandler.List)
	v1.GET("/conversations/:id", convHandler.GetByID)
	v1.PATCH("/conversations/:id/status", convHandler.SetStatus)
	v1.PATCH("/conversations/:id/assignee", convHandler.Assign)
	v1.PATCH("/conversations/:id/priority", convHandler.SetPriority)
	v1.PUT("/conversations/:id/tags", convHandler.SetTags)
	v1.POST("/conversations/:id/read", convHandler.MarkRead)

	participantHandler := NewParticipantHandler(cfg.Service, logger)
	v1.POST("/conversations/:id/participants/:user_id", participantHandler.Add)
	v1.DELETE("/conversations/:id/participants/:user_id", participantHandler.Remove)

	msgHandler := NewMessageHandler(cfg.Service, logger)
	v1.POST("/conversations/:id/messages", msgHandler.Create)
	v1.GET("/conversations/:id/messages", msgHandler.List)
	v1.GET("/conversations/:id/pins", msgHandler.ListPinned)
	v1.GET("/messages/:id", msgHandler.GetByID)
	v1.PATCH("/messages/:id", msgHandler.Edit)
	v1.DELETE("/messages/:id", msgHandler.Delete)
	v1.GET("/messages/:id/edits", msgHandler.EditHistory)
	v1.POST("/messages/:id/delivered", msgHandler.MarkDelivered)
	v1.POST("/messages/:id/read", msgHandler.MarkRead)
	v1.POST("/messages/:id/reactions", msgHandler.React)
	v1.DELETE("/messages/:id/reactions/:emoji", msgHandler.Unreact)
	v1.POST("/messages/:id/pin", msgHandler.Pin)
	v1.DELETE("/messages/:id/pin", msgHandler.Unpin)

	if cfg.Hub != nil {
		wsHandler := NewWSHandler(cfg.Hub, cfg.Service, cfg.CORSOrigins, logger)
		v1.GET("/ws", wsHandler.Serve)
	}

	return r
}
