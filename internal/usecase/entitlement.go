package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
	"github.com/ErlanBelekov/catalog-access/internal/metrics"
)

// GrantStore applies grants atomically. See repository.UserRepository.
type GrantStore interface {
	GrantPackages(ctx context.Context, email string, packageIDs []string) (*domain.User, error)
}

// PackageMapper is the catalog capability reconciliation needs.
type PackageMapper interface {
	ListPackages() ([]domain.PackageDefinition, error)
	LookupMaps() (products, prices map[string]string, err error)
}

// EntitlementUsecase turns verified payments into package grants.
type EntitlementUsecase struct {
	users   GrantStore
	catalog PackageMapper
	logger  *slog.Logger
}

func NewEntitlementUsecase(users GrantStore, catalog PackageMapper, logger *slog.Logger) *EntitlementUsecase {
	return &EntitlementUsecase{
		users:   users,
		catalog: catalog,
		logger:  logger.With("component", "entitlements"),
	}
}

// ApplyGrant finds or creates the user, reactivates it and adds the packages
// it does not hold yet. Repeating a call changes nothing. An empty email or
// package list returns domain.ErrNothingToGrant.
func (u *EntitlementUsecase) ApplyGrant(ctx context.Context, email string, packageIDs []string) (*domain.User, error) {
	email = domain.NormalizeEmail(email)
	ids := domain.NormalizePackageIDs(packageIDs)
	if email == "" || len(ids) == 0 {
		return nil, domain.ErrNothingToGrant
	}

	user, err := u.users.GrantPackages(ctx, email, ids)
	if err != nil {
		return nil, fmt.Errorf("grant packages: %w", err)
	}
	for _, id := range ids {
		metrics.PackageGrantsTotal.WithLabelValues(id).Inc()
	}
	u.logger.InfoContext(ctx, "packages granted", "user_id", user.ID, "packages", ids)
	return user, nil
}

// Reconcile resolves the event's packages and grants them.
func (u *EntitlementUsecase) Reconcile(ctx context.Context, event domain.PaymentEvent) (*domain.User, error) {
	ids := u.ResolvePackages(ctx, event)
	user, err := u.ApplyGrant(ctx, event.Email, ids)
	if errors.Is(err, domain.ErrNothingToGrant) {
		u.logger.InfoContext(ctx, "payment resolved to no grant",
			"provider", event.Provider,
			"reference", event.Reference,
		)
	}
	return user, err
}

// ResolvePackages returns the catalog package ids an event pays for. Explicit
// ids come first, then line items by price id, falling back to product id.
// Identifiers the catalog does not know are dropped.
func (u *EntitlementUsecase) ResolvePackages(ctx context.Context, event domain.PaymentEvent) []string {
	explicit := domain.NormalizePackageIDs(event.PackageIDs)

	if u.catalog == nil {
		return explicit
	}

	pkgs, err := u.catalog.ListPackages()
	if err != nil {
		// Without a catalog nothing can be checked or mapped; keep what the
		// payment named outright.
		u.logger.WarnContext(ctx, "catalog unavailable during reconciliation", "error", err)
		return explicit
	}
	known := make(map[string]struct{}, len(pkgs))
	for _, p := range pkgs {
		known[p.ID] = struct{}{}
	}

	ids := make([]string, 0, len(explicit)+len(event.LineItems))
	for _, id := range explicit {
		if _, ok := known[id]; ok {
			ids = append(ids, id)
			continue
		}
		u.logger.WarnContext(ctx, "dropping unknown package id", "package_id", id, "reference", event.Reference)
	}

	if len(event.LineItems) > 0 {
		products, prices, err := u.catalog.LookupMaps()
		if err != nil {
			u.logger.WarnContext(ctx, "catalog lookup maps unavailable", "error", err)
			return domain.NormalizePackageIDs(ids)
		}
		for _, item := range event.LineItems {
			if id, ok := prices[item.PriceID]; ok && item.PriceID != "" {
				ids = append(ids, id)
			} else if id, ok := products[item.ProductID]; ok && item.ProductID != "" {
				ids = append(ids, id)
			} else {
				u.logger.WarnContext(ctx, "dropping unmapped line item",
					"price_id", item.PriceID,
					"product_id", item.ProductID,
					"reference", event.Reference,
				)
			}
		}
	}
	return domain.NormalizePackageIDs(ids)
}
