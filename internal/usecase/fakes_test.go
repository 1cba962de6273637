package usecase_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/repository"
)

// ---- fakes ----

type fakeUserRepo struct {
	findActiveByEmail func(ctx context.Context, email string) (*domain.User, error)
	findByID          func(ctx context.Context, id string) (*domain.User, error)
	grantPackages     func(ctx context.Context, email string, ids []string) (*domain.User, error)
}

func (r *fakeUserRepo) FindActiveByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findActiveByEmail(ctx, email)
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findByID(ctx, id)
}

func (r *fakeUserRepo) List(context.Context) ([]*domain.User, error) {
	panic("not used")
}

func (r *fakeUserRepo) Upsert(context.Context, repository.UpsertUserInput) (*domain.User, error) {
	panic("not used")
}

func (r *fakeUserRepo) GrantPackages(ctx context.Context, email string, ids []string) (*domain.User, error) {
	return r.grantPackages(ctx, email, ids)
}

// memTokens is an in-memory token store with the same compare-and-set
// semantics as the Postgres one.
type memTokens struct {
	mu     sync.Mutex
	now    func() time.Time
	tokens map[string]*domain.MagicToken // by hash
	seq    int
}

func newMemTokens(now func() time.Time) *memTokens {
	return &memTokens{now: now, tokens: make(map[string]*domain.MagicToken)}
}

func (m *memTokens) Create(_ context.Context, in repository.CreateTokenInput) (*domain.MagicToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	created := in.CreatedAt
	if created.IsZero() {
		created = m.now()
	}
	t := &domain.MagicToken{
		ID:               fmt.Sprintf("tok-%d", m.seq),
		UserID:           in.UserID,
		TokenHash:        in.TokenHash,
		CreatedAt:        created.UTC(),
		ExpiresAt:        in.ExpiresAt,
		CreatedIP:        in.CreatedIP,
		CreatedUserAgent: in.CreatedUserAgent,
	}
	m.tokens[in.TokenHash] = t
	cp := *t
	return &cp, nil
}

func (m *memTokens) FindByHash(_ context.Context, hash string) (*domain.MagicToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[hash]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) MarkUsed(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID != id {
			continue
		}
		if t.UsedAt != nil || !t.ExpiresAt.After(now) {
			return domain.ErrTokenInvalid
		}
		used := now
		t.UsedAt = &used
		return nil
	}
	return domain.ErrTokenInvalid
}

func (m *memTokens) CountCreatedSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.UserID == userID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memTokens) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	links []string
}

func (n *fakeNotifier) SendLoginLink(_ context.Context, _, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links = append(n.links, link)
	return n.err
}

func (n *fakeNotifier) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.links) == 0 {
		return ""
	}
	return n.links[len(n.links)-1]
}

type fakeSigner struct{}

func (fakeSigner) Sign(subject string, ttl time.Duration) (string, time.Time, error) {
	return "jwt-for-" + subject, time.Unix(0, 0).Add(ttl), nil
}

type fakeCatalog struct {
	packages []domain.PackageDefinition
	err      error
}

func (c *fakeCatalog) ListPackages() ([]domain.PackageDefinition, error) {
	return c.packages, c.err
}

func (c *fakeCatalog) LookupMaps() (map[string]string, map[string]string, error) {
	if c.err != nil {
		return nil, nil, c.err
	}
	products := make(map[string]string)
	prices := make(map[string]string)
	for _, p := range c.packages {
		if p.StripeProductID != "" {
			products[p.StripeProductID] = p.ID
		}
		if p.StripePriceID != "" {
			prices[p.StripePriceID] = p.ID
		}
	}
	return products, prices, nil
}

// clock is a settable time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// ---- helpers ----

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testCatalog = &fakeCatalog{packages: []domain.PackageDefinition{
	{ID: "free", IsFree: true},
	{ID: "audiobook-pack-1", StripeProductID: "prod_pack1", StripePriceID: "price_pack1"},
	{ID: "pack-2", StripeProductID: "prod_pack2", StripePriceID: "price_pack2"},
}}
