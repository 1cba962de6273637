package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/metrics"
	"github.com/ErlanBelekov/catalog-access/internal/repository"
	"github.com/ErlanBelekov/catalog-access/internal/security"
)

const TokenTypeBearer = "bearer"

// Notifier delivers a login link out of band.
type Notifier interface {
	SendLoginLink(ctx context.Context, to, link string) error
}

// SessionSigner issues session credentials for a subject.
type SessionSigner interface {
	Sign(subject string, ttl time.Duration) (string, time.Time, error)
}

// PackageLister is the catalog capability needed to expand full access.
type PackageLister interface {
	ListPackages() ([]domain.PackageDefinition, error)
}

// FingerprintPolicy controls the anti-replay checks made at redemption.
type FingerprintPolicy struct {
	// EnforceIPMatch rejects any IP change when both addresses are known.
	EnforceIPMatch bool
	// BlockSuspiciousAttempts rejects only when IP and user agent both changed.
	BlockSuspiciousAttempts bool
}

type AuthConfig struct {
	MagicLinkBaseURL string
	MagicLinkTTL     time.Duration
	SessionTTL       time.Duration
	Fingerprint      FingerprintPolicy

	// Now defaults to time.Now.
	Now func() time.Time
}

type AuthUsecase struct {
	users     repository.UserRepository
	tokens    repository.TokenRepository
	limiter   *RateLimiter
	notifier  Notifier
	signer    SessionSigner
	catalog   PackageLister
	redirects *RedirectPolicy
	cfg       AuthConfig
	logger    *slog.Logger
}

func NewAuthUsecase(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	limiter *RateLimiter,
	notifier Notifier,
	signer SessionSigner,
	catalog PackageLister,
	redirects *RedirectPolicy,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthUsecase {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthUsecase{
		users:     users,
		tokens:    tokens,
		limiter:   limiter,
		notifier:  notifier,
		signer:    signer,
		catalog:   catalog,
		redirects: redirects,
		cfg:       cfg,
		logger:    logger.With("component", "auth"),
	}
}

type RequestLinkInput struct {
	Email      string
	ClientIP   string
	UserAgent  string
	RedirectTo string
}

// RequestMagicLink issues and delivers a login link. Unknown, inactive and
// entitlement-less emails return nil so callers cannot tell them apart from a
// successful send. The only error a caller should surface is
// domain.ErrRateLimited.
func (u *AuthUsecase) RequestMagicLink(ctx context.Context, input RequestLinkInput) error {
	email := domain.NormalizeEmail(input.Email)
	if email == "" {
		metrics.MagicLinkRequestsTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	user, err := u.users.FindActiveByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		metrics.MagicLinkRequestsTotal.WithLabelValues("ignored").Inc()
		return nil
	}
	if err != nil {
		metrics.MagicLinkRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("find user: %w", err)
	}
	if !user.HasAnyPackage() {
		metrics.MagicLinkRequestsTotal.WithLabelValues("ignored").Inc()
		return nil
	}

	now := u.cfg.Now().UTC()
	if err := u.limiter.Check(ctx, user.ID, now); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			metrics.MagicLinkRequestsTotal.WithLabelValues("rate_limited").Inc()
			u.logger.WarnContext(ctx, "login link rate limited", "user_id", user.ID)
		} else {
			metrics.MagicLinkRequestsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	raw, err := security.GenerateToken()
	if err != nil {
		metrics.MagicLinkRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("generate token: %w", err)
	}

	_, err = u.tokens.Create(ctx, repository.CreateTokenInput{
		UserID:           user.ID,
		TokenHash:        security.HashToken(raw),
		CreatedAt:        now,
		ExpiresAt:        now.Add(u.cfg.MagicLinkTTL),
		CreatedIP:        optional(input.ClientIP),
		CreatedUserAgent: optional(input.UserAgent),
	})
	if err != nil {
		metrics.MagicLinkRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("store token: %w", err)
	}

	link, err := u.buildLink(ctx, raw, input.RedirectTo)
	if err != nil {
		metrics.MagicLinkRequestsTotal.WithLabelValues("error").Inc()
		return err
	}

	if err := u.notifier.SendLoginLink(ctx, user.Email, link); err != nil {
		// The token stays valid, so an operator can forward the link by hand.
		u.logger.ErrorContext(ctx, "login link delivery failed",
			"user_id", user.ID,
			"email", user.Email,
			"link", link,
			"error", err,
		)
		metrics.MagicLinkRequestsTotal.WithLabelValues("delivery_failed").Inc()
		return nil
	}

	metrics.MagicLinkRequestsTotal.WithLabelValues("sent").Inc()
	return nil
}

func (u *AuthUsecase) buildLink(ctx context.Context, raw, redirectTo string) (string, error) {
	base, err := url.Parse(u.cfg.MagicLinkBaseURL)
	if err != nil {
		return "", fmt.Errorf("%w: magic link base url: %v", domain.ErrNotConfigured, err)
	}
	q := base.Query()
	q.Set("token", raw)
	if redirectTo != "" {
		target, err := u.redirects.Validate(redirectTo)
		if err != nil {
			u.logger.WarnContext(ctx, "dropping redirect hint", "redirect_to", redirectTo, "error", err)
		} else {
			q.Set("redirect_to", target)
		}
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

type RedeemInput struct {
	RawToken  string
	ClientIP  string
	UserAgent string
}

type Session struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
	User        *domain.User
	// Packages are the user's effective packages at login.
	Packages []string
}

// RedeemMagicLink consumes a login link and returns a session. Missing, used
// and expired tokens all yield domain.ErrTokenInvalid.
func (u *AuthUsecase) RedeemMagicLink(ctx context.Context, input RedeemInput) (*Session, error) {
	s, err := u.redeem(ctx, input)
	switch {
	case err == nil:
		metrics.MagicLinkRedemptionsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrTokenInvalid):
		metrics.MagicLinkRedemptionsTotal.WithLabelValues("invalid").Inc()
	case errors.Is(err, domain.ErrSuspiciousLogin):
		metrics.MagicLinkRedemptionsTotal.WithLabelValues("suspicious").Inc()
		u.logger.WarnContext(ctx, "suspicious login attempt", "client_ip", input.ClientIP)
	case errors.Is(err, domain.ErrForbidden):
		metrics.MagicLinkRedemptionsTotal.WithLabelValues("forbidden").Inc()
	default:
		metrics.MagicLinkRedemptionsTotal.WithLabelValues("error").Inc()
	}
	return s, err
}

func (u *AuthUsecase) redeem(ctx context.Context, input RedeemInput) (*Session, error) {
	if input.RawToken == "" {
		return nil, domain.ErrTokenInvalid
	}
	now := u.cfg.Now().UTC()

	tok, err := u.tokens.FindByHash(ctx, security.HashToken(input.RawToken))
	if err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	var user *domain.User
	if tok.State(now) == domain.TokenActive {
		user, err = u.users.FindByID(ctx, tok.UserID)
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
	}

	current := domain.Fingerprint{IP: input.ClientIP, UserAgent: input.UserAgent}
	if err := checkRedeemable(tok, user, current, u.cfg.Fingerprint, now); err != nil {
		return nil, err
	}

	// Another redemption may have won since FindByHash; the store decides.
	if err := u.tokens.MarkUsed(ctx, tok.ID, now); err != nil {
		if errors.Is(err, domain.ErrTokenInvalid) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("mark token used: %w", err)
	}

	access, expiresAt, err := u.signer.Sign(user.ID, u.cfg.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("sign session: %w", err)
	}

	return &Session{
		AccessToken: access,
		TokenType:   TokenTypeBearer,
		ExpiresAt:   expiresAt,
		User:        user,
		Packages:    u.EffectivePackages(ctx, user),
	}, nil
}

// checkRedeemable applies the redemption rules in order: used, expired, user
// allowed, fingerprint. user is nil when it does not exist.
func checkRedeemable(tok *domain.MagicToken, user *domain.User, current domain.Fingerprint, policy FingerprintPolicy, now time.Time) error {
	switch tok.State(now) {
	case domain.TokenRedeemed:
		return fmt.Errorf("%w: already used", domain.ErrTokenInvalid)
	case domain.TokenExpired:
		return fmt.Errorf("%w: expired", domain.ErrTokenInvalid)
	}

	if user == nil || !user.IsActive || !user.HasAnyPackage() {
		return fmt.Errorf("%w: user not allowed", domain.ErrForbidden)
	}

	// A value captured at issuance that is missing now counts as changed,
	// otherwise dropping a header would skip the check.
	issued := tok.Fingerprint()
	ipChanged := issued.IP != "" && issued.IP != current.IP

	if policy.EnforceIPMatch && ipChanged {
		return fmt.Errorf("%w: ip changed", domain.ErrSuspiciousLogin)
	}
	if policy.BlockSuspiciousAttempts {
		uaChanged := issued.UserAgent != "" && issued.UserAgent != current.UserAgent
		if ipChanged && uaChanged {
			return fmt.Errorf("%w: ip and user agent changed", domain.ErrSuspiciousLogin)
		}
	}
	return nil
}

// EffectivePackages expands full access against the current catalog. An
// unavailable catalog degrades to the explicit grants.
func (u *AuthUsecase) EffectivePackages(ctx context.Context, user *domain.User) []string {
	var pkgs []domain.PackageDefinition
	if u.catalog != nil {
		var err error
		pkgs, err = u.catalog.ListPackages()
		if err != nil {
			u.logger.WarnContext(ctx, "catalog unavailable, using explicit grants", "error", err)
		}
	}
	return domain.EffectivePackages(user, pkgs)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
