package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingCatalog struct {
	calls atomic.Int32
	err   error
}

func (c *countingCatalog) Reload() error {
	c.calls.Add(1)
	return c.err
}

func TestNewReloader_InvalidSchedule(t *testing.T) {
	if _, err := NewReloader(&countingCatalog{}, slog.Default(), "not a cron"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestReloader_ReloadsOnScheduleAndStops(t *testing.T) {
	for _, reloadErr := range []error{nil, errors.New("bad json")} {
		cat := &countingCatalog{err: reloadErr}
		r, err := NewReloader(cat, slog.Default(), "@every 1s")
		if err != nil {
			t.Fatalf("new reloader: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			r.Start(ctx)
			close(done)
		}()

		deadline := time.After(5 * time.Second)
		for cat.calls.Load() == 0 {
			select {
			case <-deadline:
				t.Fatal("reload was never called")
			case <-time.After(50 * time.Millisecond):
			}
		}

		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("reloader did not stop")
		}
	}
}
