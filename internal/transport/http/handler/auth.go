package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/transport/http/middleware"
	"github.com/ErlanBelekov/catalog-access/internal/usecase"
)

// authUsecaser is the subset of AuthUsecase the handler needs.
// Defined here (point of use) so tests can inject a fake.
type authUsecaser interface {
	RequestMagicLink(ctx context.Context, input usecase.RequestLinkInput) error
	RedeemMagicLink(ctx context.Context, input usecase.RedeemInput) (*usecase.Session, error)
}

type redirectValidator interface {
	Validate(target string) (string, error)
}

type packageResolver interface {
	EffectivePackages(user *domain.User) []string
}

// CookieConfig describes the session cookie set in cookie response mode.
type CookieConfig struct {
	Name     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

type AuthHandler struct {
	auth              authUsecaser
	redirects         redirectValidator
	packages          packageResolver
	cookie            CookieConfig
	postLoginRedirect string
	logger            *slog.Logger
}

func NewAuthHandler(
	auth authUsecaser,
	redirects redirectValidator,
	packages packageResolver,
	cookie CookieConfig,
	postLoginRedirect string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:              auth,
		redirects:         redirects,
		packages:          packages,
		cookie:            cookie,
		postLoginRedirect: postLoginRedirect,
		logger:            logger.With("component", "auth_handler"),
	}
}

type magicLinkRequest struct {
	Email      string `json:"email"       binding:"required,email,max=320"`
	RedirectTo string `json:"redirect_to" binding:"max=2048"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}

type userResponse struct {
	ID         string   `json:"id"`
	Email      string   `json:"email"`
	FullAccess bool     `json:"full_access"`
	Packages   []string `json:"packages"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        userResponse `json:"user"`
}

// POST /auth/magic-link/request
// Answers the same way whether or not the email is registered. Rate limiting
// is the one observable outcome.
func (h *AuthHandler) RequestMagicLink(c *gin.Context) {
	var req magicLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.auth.RequestMagicLink(c.Request.Context(), usecase.RequestLinkInput{
		Email:      req.Email,
		ClientIP:   c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		RedirectTo: req.RedirectTo,
	})
	if errors.Is(err, domain.ErrRateLimited) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": errRateLimited})
		return
	}
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "request magic link", "error", err)
	}

	c.JSON(http.StatusOK, detailResponse{Detail: detailLinkSent})
}

// GET /auth/magic-login?token=<raw>&response_mode=json|cookie&redirect_to=<target>
func (h *AuthHandler) MagicLogin(c *gin.Context) {
	mode := c.DefaultQuery("response_mode", "json")
	if mode != "json" && mode != "cookie" {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidMode})
		return
	}

	// Validate the destination before the token is spent.
	var target string
	if mode == "cookie" {
		target = h.postLoginRedirect
		if raw := c.Query("redirect_to"); raw != "" {
			validated, err := h.redirects.Validate(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRedirect})
				return
			}
			target = validated
		}
	}

	session, err := h.auth.RedeemMagicLink(c.Request.Context(), usecase.RedeemInput{
		RawToken:  c.Query("token"),
		ClientIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": errTokenInvalid})
		case errors.Is(err, domain.ErrSuspiciousLogin):
			c.JSON(http.StatusBadRequest, gin.H{"error": errSuspiciousLogin})
		case errors.Is(err, domain.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{"error": errUserNotAllowed})
		default:
			h.logger.ErrorContext(c.Request.Context(), "redeem magic link", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		}
		return
	}

	if mode == "cookie" {
		h.setSessionCookie(c, session.AccessToken, int(h.cookie.MaxAge.Seconds()))
		c.Redirect(http.StatusTemporaryRedirect, target)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: session.AccessToken,
		TokenType:   session.TokenType,
		ExpiresAt:   session.ExpiresAt,
		User:        toUserResponse(session.User, session.Packages),
	})
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.UserFrom(c)
	c.JSON(http.StatusOK, toUserResponse(user, h.packages.EffectivePackages(user)))
}

// POST /auth/logout
// Sessions are stateless, so logging out only drops the cookie.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, detailResponse{Detail: detailLoggedOut})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(h.cookie.SameSite)
	c.SetCookie(h.cookie.Name, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}

func toUserResponse(u *domain.User, packages []string) userResponse {
	if packages == nil {
		packages = []string{}
	}
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullAccess: u.FullAccess,
		Packages:   packages,
	}
}
