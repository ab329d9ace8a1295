package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/hr-requests/internal/application/permission"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/event"
)

// Identity headers set by the upstream gateway after authentication
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	// HeaderRequestID carries the correlation id; one is generated when absent
	HeaderRequestID = "X-Request-ID"
)

const actorKey = "actor"

// correlationMiddleware propagates X-Request-ID into the request context so
// lifecycle events and the notifications they produce can be traced back
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		c.Request = c.Request.WithContext(event.ContextWithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}

// authMiddleware builds the actor from the gateway headers
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: "missing user identity"})
			return
		}
		role, err := entity.ParseRole(c.GetHeader(HeaderUserRole))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Error: err.Error()})
			return
		}
		c.Set(actorKey, entity.Actor{UserID: userID, Role: role})
		c.Next()
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}

// requireAdmin lets only the administrative role through
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Role.BypassesScope() {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{Success: false, Error: "permission denied: role ADMIN required"})
			return
		}
		c.Next()
	}
}

// requirePermission rejects actors whose scope for key is denied
func (h *Handlers) requirePermission(resolver permission.Resolver, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		sc, err := resolver.ResolveScope(c.Request.Context(), actor, key)
		if err != nil {
			h.respondError(c, err)
			c.Abort()
			return
		}
		if sc.IsDenied() {
			c.AbortWithStatusJSON(http.StatusForbidden, Response{Success: false, Error: "permission denied: " + key + " required"})
			return
		}
		c.Next()
	}
}
