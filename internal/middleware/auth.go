package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// authHeader carries the shared key for service-to-service calls.
const authHeader = "X-Internal-API-Key"

// InternalAuth validates service-to-service authentication against the
// configured shared key. An empty key means the deployment is misconfigured
// and every request is rejected rather than let the engine run open.
func InternalAuth(apiKey string) gin.HandlerFunc {
	if apiKey == "" {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "server misconfigured: internal API key not set",
			})
		}
	}
	keyBytes := []byte(apiKey)

	return func(c *gin.Context) {
		got := c.GetHeader(authHeader)
		// Constant-time compare to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(got), keyBytes) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Next()
	}
}
