package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	GuestSessionHeader = "X-Guest-Session"
	GuestSessionCookie = "guest_session"

	ContextKeyGuestSession = "guest_session"
)

// GuestSession requires an opaque session id from the chat widget, in the
// X-Guest-Session header or the guest_session cookie.
func GuestSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(GuestSessionHeader))
		if id == "" {
			if cookie, err := c.Cookie(GuestSessionCookie); err == nil {
				id = strings.TrimSpace(cookie)
			}
		}
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "missing guest session",
			})
			return
		}
		c.Set(ContextKeyGuestSession, id)
		c.Next()
	}
}

func GetGuestSessionID(c *gin.Context) string {
	return getString(c, ContextKeyGuestSession)
}
