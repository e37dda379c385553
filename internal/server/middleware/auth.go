package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/pkg/api"
)

// Auth requires a Bearer token from keys. An empty key list leaves the
// routes open.
func Auth(keys []string) gin.HandlerFunc {
	allowed := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			allowed = append(allowed, []byte(k))
		}
	}

	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			_ = c.Error(api.UnauthorizedError("Missing Authorization header"))
			c.Abort()
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			_ = c.Error(api.UnauthorizedError("Invalid Authorization header format"))
			c.Abort()
			return
		}

		for _, k := range allowed {
			if subtle.ConstantTimeCompare(k, []byte(token)) == 1 {
				c.Next()
				return
			}
		}
		_ = c.Error(api.UnauthorizedError("Invalid API Key"))
		c.Abort()
	}
}
