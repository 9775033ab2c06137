// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication for the bot backend. The
// API has exactly one caller (the Telegram bot process), so auth is a single
// shared secret rather than per-user credentials. A server that boots
// without the secret configured refuses API traffic with a 500 instead of
// silently running open.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BotAuth returns a middleware that requires "Authorization: Bearer
// <token>" matching the configured backend token. Comparison is
// constant-time. Auth failures are not recorded in the idempotency store;
// they happen before the request id is even looked at.
func BotAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "server_misconfigured",
				"message":    "backend token is not configured",
			})
			return
		}

		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid or missing bearer token",
			})
			return
		}

		c.Next()
	}
}
