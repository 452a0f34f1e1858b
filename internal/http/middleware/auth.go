// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements BearerAuth, the single-token guard in front of the
// read-only ops API. The bot has no end-user accounts on the HTTP side; the
// only callers are operators and dashboards, so one static token from
// configuration is the whole auth model. Telegram webhook deliveries carry
// their own secret header and are mounted outside the guarded group.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuth returns a Gin middleware that requires
// "Authorization: Bearer <token>" to match the configured token.
//
// Behavior:
//   - An empty configured token disables the guard entirely (dev mode).
//   - A missing or malformed Authorization header yields 401.
//   - A present but wrong token yields 403.
//   - Comparison is constant-time to avoid leaking the token via timing.
//
// Error bodies use the same envelope as the rest of the API:
//
//	{ "request_id": "<uuid>", "code": "unauthorized", "message": "..." }
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		raw := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(raw, "Bearer ")
		if !ok || presented == "" {
			abortAuth(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			abortAuth(c, http.StatusForbidden, "forbidden", "invalid token")
			return
		}
		c.Next()
	}
}

func abortAuth(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       code,
		"message":    msg,
	})
}
