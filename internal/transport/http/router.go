package httptransport

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/ErlanBelekov/catalog-access/internal/transport/http/handler"
	"github.com/ErlanBelekov/catalog-access/internal/transport/http/middleware"
	"github.com/ErlanBelekov/catalog-access/internal/usecase"
)

type RouterConfig struct {
	CORSAllowedOrigins []string
	CookieName         string
	HSTS               bool
	// TrustedProxies are the only peers whose forwarding headers set the
	// client IP. Nil means the socket address is always used.
	TrustedProxies []string
}

func NewRouter(
	logger *slog.Logger,
	cfg RouterConfig,
	sessions *usecase.SessionUsecase,
	authHandler *handler.AuthHandler,
	catalogHandler *handler.CatalogHandler,
	webhookHandler *handler.WebhookHandler,
) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("invalid trusted proxies, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security(middleware.SecurityConfig{
		HSTS:            cfg.HSTS,
		NoStorePrefixes: []string{"/auth"},
	}))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authMW := middleware.Auth(sessions, cfg.CookieName)
	entitled := middleware.RequireEntitlement(sessions)

	auth := r.Group("/auth")
	auth.POST("/magic-link/request", authHandler.RequestMagicLink)
	auth.GET("/magic-login", authHandler.MagicLogin)
	auth.POST("/logout", authHandler.Logout)
	auth.GET("/me", authMW, authHandler.Me)

	r.GET("/catalog/free", catalogHandler.Free)
	catalog := r.Group("/catalog", authMW, entitled)
	catalog.GET("/packages", catalogHandler.ListPackages)
	catalog.GET("/packages/:id", catalogHandler.GetPackage)

	webhooks := r.Group("/webhooks")
	webhooks.POST("/stripe", webhookHandler.Stripe)
	webhooks.POST("/paypal", webhookHandler.PayPal)

	return r
}
