package api

import "github.com/gin-gonic/gin"

// extractActor identifies the calling actor from an upstream auth proxy's
// headers: priority X-Forwarded-User > X-Forwarded-Email > X-Remote-User,
// falling back to "api-client" for unauthenticated internal callers.
func extractActor(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	if remote := c.GetHeader("X-Remote-User"); remote != "" {
		return remote
	}
	return "api-client"
}
