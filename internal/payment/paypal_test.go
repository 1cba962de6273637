package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

const ipnBody = "payment_status=Completed&payer_email=payer%40x.com&custom=pack-2%2C+audiobook-pack-1&txn_id=TX1"

func newTestPayPal(url string) *PayPal {
	p := NewPayPal(url, nil, discardLogger())
	p.backoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return p
}

func TestPayPal_Verify(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		if r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, "VERIFIED\n")
	}))
	defer srv.Close()

	if err := newTestPayPal(srv.URL).Verify(context.Background(), []byte(ipnBody)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != "cmd=_notify-validate&"+ipnBody {
		t.Errorf("posted body = %q", gotBody)
	}
}

func TestPayPal_VerifyInvalid(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, "INVALID")
	}))
	defer srv.Close()

	err := newTestPayPal(srv.URL).Verify(context.Background(), []byte(ipnBody))
	if !errors.Is(err, domain.ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("INVALID must not be retried, got %d calls", calls.Load())
	}
}

func TestPayPal_VerifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "VERIFIED")
	}))
	defer srv.Close()

	if err := newTestPayPal(srv.URL).Verify(context.Background(), []byte(ipnBody)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestPayPal_VerifyPreconditions(t *testing.T) {
	if err := newTestPayPal("").Verify(context.Background(), []byte(ipnBody)); !errors.Is(err, domain.ErrNotConfigured) {
		t.Errorf("no url: expected ErrNotConfigured, got %v", err)
	}
	if newTestPayPal("").Configured() || !newTestPayPal("http://127.0.0.1:1").Configured() {
		t.Error("Configured must follow the verify url")
	}
	if err := newTestPayPal("http://127.0.0.1:1").Verify(context.Background(), nil); !errors.Is(err, domain.ErrVerificationFailed) {
		t.Errorf("empty body: expected ErrVerificationFailed, got %v", err)
	}
}

func TestParseIPN(t *testing.T) {
	pe, err := ParseIPN([]byte(ipnBody))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pe.Email != "payer@x.com" || pe.Reference != "TX1" || pe.Provider != domain.ProviderPayPal {
		t.Errorf("unexpected event %+v", pe)
	}
	if !slices.Equal(pe.PackageIDs, []string{"pack-2", "audiobook-pack-1"}) {
		t.Errorf("package ids = %v", pe.PackageIDs)
	}

	pending := strings.Replace(ipnBody, "Completed", "Pending", 1)
	if pe, err := ParseIPN([]byte(pending)); err != nil || pe != nil {
		t.Errorf("pending payment: expected nil, got %+v, %v", pe, err)
	}
}
