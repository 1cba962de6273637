package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

const (
	ipnVerified       = "VERIFIED"
	ipnValidatePrefix = "cmd=_notify-validate&"
)

// PayPal verifies IPN messages by posting them back to PayPal.
type PayPal struct {
	verifyURL string
	client    *http.Client
	backoff   func() retry.Backoff
	logger    *slog.Logger
}

func NewPayPal(verifyURL string, client *http.Client, logger *slog.Logger) *PayPal {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PayPal{
		verifyURL: verifyURL,
		client:    client,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
		},
		logger: logger.With("component", "paypal"),
	}
}

// Verify returns nil only when PayPal answers VERIFIED for payload. Transport
// errors and 5xx answers are retried; INVALID is not.
func (p *PayPal) Configured() bool { return p.verifyURL != "" }

func (p *PayPal) Verify(ctx context.Context, payload []byte) error {
	if p.verifyURL == "" {
		return fmt.Errorf("%w: paypal ipn verify url", domain.ErrNotConfigured)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty ipn body", domain.ErrVerificationFailed)
	}

	body := append([]byte(ipnValidatePrefix), payload...)
	var answer string
	err := retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.verifyURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.client.Do(req)
		if err != nil {
			p.logger.WarnContext(ctx, "ipn verification request failed", "error", err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return retry.RetryableError(fmt.Errorf("ipn verify status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ipn verify status %d", resp.StatusCode)
		}
		answer = strings.TrimSpace(string(b))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrVerificationFailed, err)
	}
	if answer != ipnVerified {
		return fmt.Errorf("%w: ipn answer %q", domain.ErrVerificationFailed, answer)
	}
	return nil
}

// ParseIPN returns the payment a verified IPN describes, or nil unless the
// payment status is Completed.
func ParseIPN(payload []byte) (*domain.PaymentEvent, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("parse ipn: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(values.Get("payment_status")), "completed") {
		return nil, nil
	}
	return &domain.PaymentEvent{
		Provider:   domain.ProviderPayPal,
		Reference:  values.Get("txn_id"),
		Email:      values.Get("payer_email"),
		PackageIDs: splitList(values.Get("custom")),
	}, nil
}
