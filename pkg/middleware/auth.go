package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/cab-voice-agent/pkg/auth"
	"github.com/troikatech/cab-voice-agent/pkg/errors"
)

// Context keys set by AuthMiddleware.
const (
	ClientIDKey = "client_id"
	RoleKey     = "client_role"
)

// AuthMiddleware requires a bearer token. Browsers cannot set headers on a
// websocket handshake, so a token query parameter is accepted too.
func AuthMiddleware(issuer *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			errors.Unauthorized(c, "authorization header required")
			return
		}

		claims, err := issuer.ParseToken(tokenString)
		if err != nil {
			errors.Unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(ClientIDKey, claims.ClientID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return "", false
		}
		return parts[1], true
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

func RoleMiddleware(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		if role == "" {
			errors.Forbidden(c, "role not found in token")
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}
		errors.Forbidden(c, "insufficient permissions")
	}
}
