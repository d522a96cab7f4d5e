package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"example.com/planboard/internal/directory"
	"example.com/planboard/internal/model"
)

const callerKey = "planboard.caller"

// Authenticator resolves a session bearer token against the primary
// directory.
type Authenticator interface {
	UserFromSession(ctx context.Context, token string) (*directory.User, error)
}

func (h *Handler) requireCaller() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		u, err := h.auth.UserFromSession(c.Request.Context(), token)
		if err != nil {
			h.log.Debug("session resolution failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(callerKey, model.Caller{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName})
		c.Next()
	}
}

// requireSuperAdmin checks the registry before any other admin logic runs.
func (h *Handler) requireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := h.admins.IsSuperAdmin(caller(c).ID)
		if err != nil {
			h.fail(c, err)
			c.Abort()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "super admin required"})
			return
		}
		c.Next()
	}
}

func caller(c *gin.Context) model.Caller {
	v, _ := c.Get(callerKey)
	cl, _ := v.(model.Caller)
	return cl
}
