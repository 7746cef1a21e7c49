package server

import (
	"crypto/subtle"
	"strings"

	obscontext "github.com/Wollie333/vilo-sub003/internal/observability/context"
	"github.com/gin-gonic/gin"
)

const contextAdminIDKey = "admin_id"

// AdminRequired authenticates admin requests with the static bearer token.
// The acting admin's identity comes from the X-Admin-ID header and is stamped
// onto every manual action and triggered run.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.cfg.AdminToken)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		adminID := strings.TrimSpace(c.GetHeader("X-Admin-ID"))
		if adminID == "" {
			adminID = "admin"
		}
		c.Set(contextAdminIDKey, adminID)
		c.Request = c.Request.WithContext(
			obscontext.WithActor(c.Request.Context(), "admin", adminID))
		c.Next()
	}
}

func (s *Server) adminIDFromContext(c *gin.Context) string {
	if actorType, actorID := obscontext.ActorFromGin(c); actorType == "admin" && actorID != "" {
		return actorID
	}
	value, ok := c.Get(contextAdminIDKey)
	if !ok {
		return ""
	}
	adminID, _ := value.(string)
	return adminID
}
