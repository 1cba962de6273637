package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ErlanBelekov/catalog-access/config"
	"github.com/ErlanBelekov/catalog-access/internal/catalog"
	"github.com/ErlanBelekov/catalog-access/internal/cleanup"
	"github.com/ErlanBelekov/catalog-access/internal/email"
	"github.com/ErlanBelekov/catalog-access/internal/health"
	"github.com/ErlanBelekov/catalog-access/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/catalog-access/internal/log"
	"github.com/ErlanBelekov/catalog-access/internal/metrics"
	"github.com/ErlanBelekov/catalog-access/internal/payment"
	"github.com/ErlanBelekov/catalog-access/internal/session"
	httptransport "github.com/ErlanBelekov/catalog-access/internal/transport/http"
	"github.com/ErlanBelekov/catalog-access/internal/transport/http/handler"
	"github.com/ErlanBelekov/catalog-access/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	if cfg.AutoMigrate {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			stop()
			log.Fatalf("migrate: %v", err)
		}
		logger.Info("migrations applied")
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ConnectAttempts: 5,
	})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	// Catalog. A broken catalog does not stop the server; readiness reports it.
	cat, err := catalog.New(cfg.CatalogDir)
	if err != nil {
		logger.Error("catalog load failed", "dir", cfg.CatalogDir, "error", err)
	}
	if cfg.CatalogReloadSchedule != "" {
		reloader, err := catalog.NewReloader(cat, logger, cfg.CatalogReloadSchedule)
		if err != nil {
			stop()
			log.Fatalf("catalog reloader: %v", err)
		}
		go reloader.Start(ctx)
	}

	// Email
	sender, closeSender, err := newSender(cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("email: %v", err)
	}
	defer closeSender.Close()

	// Auth
	userRepo := postgres.NewUserRepository(pool)
	tokenRepo := postgres.NewTokenRepository(pool)
	signer := session.NewSigner([]byte(cfg.JWTSecret))

	if cfg.TokenPurgeInterval > 0 {
		// The rate limiter counts stored tokens, so never purge inside its window.
		retention := max(cfg.TokenRetention, cfg.RateLimitWindow)
		go cleanup.NewTokenReaper(tokenRepo, logger, cfg.TokenPurgeInterval, retention).Start(ctx)
	}
	redirects := usecase.NewRedirectPolicy(cfg.RedirectAllowedHosts)

	authUsecase := usecase.NewAuthUsecase(
		userRepo,
		tokenRepo,
		usecase.NewRateLimiter(tokenRepo, cfg.RateLimitWindow, cfg.RateLimitMaxRequests),
		email.NewLinkNotifier(sender, cfg.MagicLinkTTL),
		signer,
		cat,
		redirects,
		usecase.AuthConfig{
			MagicLinkBaseURL: cfg.MagicLinkBaseURL,
			MagicLinkTTL:     cfg.MagicLinkTTL,
			SessionTTL:       cfg.SessionTTL,
			Fingerprint: usecase.FingerprintPolicy{
				EnforceIPMatch:          cfg.EnforceIPMatch,
				BlockSuspiciousAttempts: cfg.BlockSuspicious,
			},
		},
		logger,
	)
	sessions := usecase.NewSessionUsecase(signer, userRepo, cat)

	authHandler := handler.NewAuthHandler(authUsecase, redirects, sessions, handler.CookieConfig{
		Name:     cfg.CookieName,
		Domain:   cfg.CookieDomain,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.SameSite(),
		MaxAge:   cfg.SessionTTL,
	}, cfg.PostLoginRedirectURL, logger)

	// Catalog
	catalogHandler := handler.NewCatalogHandler(cat, sessions, logger)

	// Payments
	var lineItems payment.LineItemLister
	if cfg.StripeSecretKey != "" {
		lineItems = payment.NewStripeLineItems(cfg.StripeSecretKey)
	}
	webhookHandler := handler.NewWebhookHandler(
		payment.NewStripe(cfg.StripeWebhookSecret, lineItems, logger),
		payment.NewPayPal(cfg.PayPalIPNVerifyURL, nil, logger),
		usecase.NewEntitlementUsecase(userRepo, cat, logger),
		logger,
	)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer,
		health.PostgresDependency(pool),
		health.CatalogDependency(cat.Ready),
	)

	srv := http.Server{
		Addr: ":" + cfg.Port,
		Handler: httptransport.NewRouter(logger, httptransport.RouterConfig{
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			CookieName:         cfg.CookieName,
			HSTS:               cfg.CookieSecure,
			TrustedProxies:     cfg.TrustedProxies,
		}, sessions, authHandler, catalogHandler, webhookHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
}

func migrateUp(databaseURL string) error {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newSender picks the outbound email transport. The queue provider hands
// messages to cmd/mailer and must be closed on shutdown.
func newSender(cfg *config.Config, logger *slog.Logger) (email.Sender, io.Closer, error) {
	if cfg.EmailEnabled && cfg.EmailProvider == email.ProviderQueue {
		q, err := email.NewQueueSender(cfg.RabbitMQURL, cfg.EmailQueue)
		if err != nil {
			return nil, nil, err
		}
		return q, q, nil
	}
	s, err := email.NewSender(emailConfig(cfg), logger)
	if err != nil {
		return nil, nil, err
	}
	return s, nopCloser{}, nil
}

func emailConfig(cfg *config.Config) email.Config {
	return email.Config{
		Enabled:      cfg.EmailEnabled,
		Provider:     cfg.EmailProvider,
		From:         cfg.EmailFrom,
		ResendAPIKey: cfg.ResendAPIKey,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
	}
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
