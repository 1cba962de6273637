package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/metrics"
	"github.com/ErlanBelekov/catalog-access/internal/payment"
)

// Stripe recommends accepting up to 64KB event payloads.
const maxWebhookBody = 64 << 10

type stripeVerifier interface {
	Configured() bool
	Verify(payload []byte, signature string) (stripe.Event, error)
	PaymentEvent(ctx context.Context, event stripe.Event) (*domain.PaymentEvent, error)
}

type ipnVerifier interface {
	Configured() bool
	Verify(ctx context.Context, payload []byte) error
}

type reconciler interface {
	Reconcile(ctx context.Context, event domain.PaymentEvent) (*domain.User, error)
}

type WebhookHandler struct {
	stripe     stripeVerifier
	paypal     ipnVerifier
	reconciler reconciler
	logger     *slog.Logger
}

func NewWebhookHandler(stripe stripeVerifier, paypal ipnVerifier, reconciler reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		stripe:     stripe,
		paypal:     paypal,
		reconciler: reconciler,
		logger:     logger.With("component", "webhook_handler"),
	}
}

type okResponse struct {
	OK bool `json:"ok"`
}

// POST /webhooks/stripe
func (h *WebhookHandler) Stripe(c *gin.Context) {
	if !h.stripe.Configured() {
		h.verifyError(c, domain.ProviderStripe, domain.ErrNotConfigured)
		return
	}
	payload, ok := h.readBody(c, domain.ProviderStripe)
	if !ok {
		return
	}

	event, err := h.stripe.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.verifyError(c, domain.ProviderStripe, err)
		return
	}

	pe, err := h.stripe.PaymentEvent(c.Request.Context(), event)
	if err != nil {
		// Verified but unreadable: retrying will not help.
		h.logger.ErrorContext(c.Request.Context(), "decode stripe event", "event_id", event.ID, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(domain.ProviderStripe, "malformed").Inc()
		c.JSON(http.StatusOK, okResponse{OK: true})
		return
	}
	h.reconcile(c, domain.ProviderStripe, pe)
}

// POST /webhooks/paypal
func (h *WebhookHandler) PayPal(c *gin.Context) {
	if !h.paypal.Configured() {
		h.verifyError(c, domain.ProviderPayPal, domain.ErrNotConfigured)
		return
	}
	payload, ok := h.readBody(c, domain.ProviderPayPal)
	if !ok {
		return
	}

	if err := h.paypal.Verify(c.Request.Context(), payload); err != nil {
		h.verifyError(c, domain.ProviderPayPal, err)
		return
	}

	pe, err := payment.ParseIPN(payload)
	if err != nil {
		h.logger.ErrorContext(c.Request.Context(), "parse paypal ipn", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(domain.ProviderPayPal, "malformed").Inc()
		c.JSON(http.StatusOK, okResponse{OK: true})
		return
	}
	h.reconcile(c, domain.ProviderPayPal, pe)
}

func (h *WebhookHandler) readBody(c *gin.Context, provider string) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": errWebhookInvalid})
		return nil, false
	}
	if len(payload) == 0 {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "rejected").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": errEmptyBody})
		return nil, false
	}
	return payload, true
}

func (h *WebhookHandler) verifyError(c *gin.Context, provider string, err error) {
	if errors.Is(err, domain.ErrNotConfigured) {
		h.logger.ErrorContext(c.Request.Context(), "webhook not configured", "provider", provider, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(provider, "not_configured").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": errWebhookConfig})
		return
	}
	h.logger.WarnContext(c.Request.Context(), "webhook verification failed", "provider", provider, "error", err)
	metrics.WebhookEventsTotal.WithLabelValues(provider, "rejected").Inc()
	c.JSON(http.StatusBadRequest, gin.H{"error": errWebhookInvalid})
}

// reconcile answers 200 for every business outcome. Only a store failure is
// reported as 500 so the provider redelivers; grants are idempotent.
func (h *WebhookHandler) reconcile(c *gin.Context, provider string, pe *domain.PaymentEvent) {
	if pe == nil {
		metrics.WebhookEventsTotal.WithLabelValues(provider, "ignored").Inc()
		c.JSON(http.StatusOK, okResponse{OK: true})
		return
	}

	_, err := h.reconciler.Reconcile(c.Request.Context(), *pe)
	switch {
	case err == nil:
		metrics.WebhookEventsTotal.WithLabelValues(provider, "granted").Inc()
	case errors.Is(err, domain.ErrNothingToGrant):
		metrics.WebhookEventsTotal.WithLabelValues(provider, "ignored").Inc()
	default:
		h.logger.ErrorContext(c.Request.Context(), "apply grant", "provider", provider, "reference", pe.Reference, "error", err)
		metrics.WebhookEventsTotal.WithLabelValues(provider, "error").Inc()
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}
	c.JSON(http.StatusOK, okResponse{OK: true})
}
