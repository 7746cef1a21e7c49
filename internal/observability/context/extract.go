package context

import "github.com/gin-gonic/gin"

// ActorFromGin reads the actor stamped on the request context by the admin
// auth middleware.
func ActorFromGin(c *gin.Context) (string, string) {
	if c == nil || c.Request == nil {
		return "", ""
	}
	return ActorFromContext(c.Request.Context())
}
