package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

// LineItemLister fetches the line items of a checkout session when the
// webhook payload omits them.
type LineItemLister interface {
	ListLineItems(ctx context.Context, sessionID string) ([]domain.LineItemRef, error)
}

// StripeLineItems lists checkout line items through the Stripe API.
type StripeLineItems struct {
	client session.Client
}

func NewStripeLineItems(secretKey string) *StripeLineItems {
	return &StripeLineItems{client: session.Client{
		B:   stripe.GetBackend(stripe.APIBackend),
		Key: secretKey,
	}}
}

func (l *StripeLineItems) ListLineItems(ctx context.Context, sessionID string) ([]domain.LineItemRef, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{Session: stripe.String(sessionID)}
	params.Context = ctx
	params.Limit = stripe.Int64(100)
	params.AddExpand("data.price.product")

	var refs []domain.LineItemRef
	it := l.client.ListLineItems(params)
	for it.Next() {
		refs = append(refs, lineItemRef(it.LineItem()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("list line items for %s: %w", sessionID, err)
	}
	return refs, nil
}

// Stripe verifies webhook signatures and reduces checkout events to payments.
type Stripe struct {
	webhookSecret string
	lineItems     LineItemLister
	logger        *slog.Logger
}

// NewStripe returns a verifier. lineItems may be nil when no API key is set.
func NewStripe(webhookSecret string, lineItems LineItemLister, logger *slog.Logger) *Stripe {
	return &Stripe{
		webhookSecret: webhookSecret,
		lineItems:     lineItems,
		logger:        logger.With("component", "stripe"),
	}
}

// Verify checks the Stripe-Signature header against the raw body.
// Configured reports whether a webhook secret is set.
func (s *Stripe) Configured() bool { return s.webhookSecret != "" }

func (s *Stripe) Verify(payload []byte, signature string) (stripe.Event, error) {
	if s.webhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("%w: stripe webhook secret", domain.ErrNotConfigured)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
	}
	return event, nil
}

// PaymentEvent returns the payment a verified event describes, or nil for
// events that grant nothing.
func (s *Stripe) PaymentEvent(ctx context.Context, event stripe.Event) (*domain.PaymentEvent, error) {
	if event.Type != stripe.EventTypeCheckoutSessionCompleted || event.Data == nil {
		return nil, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}

	out := &domain.PaymentEvent{
		Provider:   domain.ProviderStripe,
		Reference:  cs.ID,
		Email:      checkoutEmail(&cs),
		PackageIDs: metadataPackageIDs(cs.Metadata),
	}

	if cs.LineItems != nil {
		for _, item := range cs.LineItems.Data {
			out.LineItems = append(out.LineItems, lineItemRef(item))
		}
	}
	if len(out.LineItems) == 0 && s.lineItems != nil && cs.ID != "" {
		refs, err := s.lineItems.ListLineItems(ctx, cs.ID)
		if err != nil {
			// Explicit metadata may still be enough to grant something.
			s.logger.WarnContext(ctx, "line item fetch failed", "session_id", cs.ID, "error", err)
		}
		out.LineItems = refs
	}
	return out, nil
}

func checkoutEmail(cs *stripe.CheckoutSession) string {
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		return cs.CustomerDetails.Email
	}
	return cs.CustomerEmail
}

// metadataPackageIDs reads package_id and the comma-separated package_ids.
func metadataPackageIDs(md map[string]string) []string {
	var ids []string
	if id := strings.TrimSpace(md["package_id"]); id != "" {
		ids = append(ids, id)
	}
	ids = append(ids, splitList(md["package_ids"])...)
	return ids
}

func lineItemRef(item *stripe.LineItem) domain.LineItemRef {
	var ref domain.LineItemRef
	if item == nil || item.Price == nil {
		return ref
	}
	ref.PriceID = item.Price.ID
	if item.Price.Product != nil {
		ref.ProductID = item.Price.Product.ID
	}
	return ref
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
