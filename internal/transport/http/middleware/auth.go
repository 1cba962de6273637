package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	ctxlog "github.com/ErlanBelekov/catalog-access/internal/log"
)

const (
	errUnauthorized = "Unauthorized"
	errForbidden    = "Forbidden"

	userKey = "user"
)

type authenticator interface {
	Authenticate(ctx context.Context, credential string) (*domain.User, error)
}

type entitlementChecker interface {
	RequireEntitlement(user *domain.User) error
}

// Auth resolves the session credential, taken from a Bearer header or else the
// session cookie, and stores the user in the gin context.
func Auth(auth authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := auth.Authenticate(c.Request.Context(), credential(c, cookieName))
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrForbidden):
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errForbidden})
			case errors.Is(err, domain.ErrUnauthenticated):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errUnauthorized})
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
			return
		}

		c.Set(userKey, user)
		c.Request = c.Request.WithContext(ctxlog.With(c.Request.Context(), slog.String("user_id", user.ID)))
		c.Next()
	}
}

// RequireEntitlement runs after Auth and rejects users holding no package.
func RequireEntitlement(checker entitlementChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := checker.RequireEntitlement(UserFrom(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errForbidden})
			return
		}
		c.Next()
	}
}

// UserFrom returns the user set by Auth. It panics if Auth did not run.
func UserFrom(c *gin.Context) *domain.User {
	return c.MustGet(userKey).(*domain.User)
}

func credential(c *gin.Context, cookieName string) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookieName == "" {
		return ""
	}
	v, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return v
}
