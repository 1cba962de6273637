package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

type SecurityConfig struct {
	// HSTS is only sent when the service is served over TLS.
	HSTS bool
	// NoStorePrefixes marks paths whose responses carry credentials.
	NoStorePrefixes []string
}

// Security sets common HTTP security headers on every response.
func Security(cfg SecurityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		if cfg.HSTS {
			c.Header("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
		}
		for _, p := range cfg.NoStorePrefixes {
			if strings.HasPrefix(c.Request.URL.Path, p) {
				c.Header("Cache-Control", "no-store")
				c.Header("Pragma", "no-cache")
				break
			}
		}
		c.Next()
	}
}
