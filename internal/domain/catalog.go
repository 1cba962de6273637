package domain

import (
	"errors"
	"slices"
)

var (
	ErrPackageNotFound    = errors.New("package not found")
	ErrCatalogUnavailable = errors.New("catalog is unavailable or misconfigured")
)

type PackageDefinition struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	IsFree          bool     `json:"is_free,omitempty"`
	TitleIDs        []string `json:"title_ids"`
	StripeProductID string   `json:"stripe_product_id,omitempty"`
	StripePriceID   string   `json:"stripe_price_id,omitempty"`
}

// EffectivePackages returns every catalog package id for full-access users and
// the explicit grants otherwise. An empty catalog falls back to the grants.
func EffectivePackages(u *User, catalog []PackageDefinition) []string {
	if u.FullAccess && len(catalog) > 0 {
		ids := make([]string, 0, len(catalog))
		for _, p := range catalog {
			if p.ID != "" {
				ids = append(ids, p.ID)
			}
		}
		return ids
	}
	out := make([]string, len(u.Packages))
	copy(out, u.Packages)
	return out
}

// CanAccessPackage reports whether packageID is among the user's effective packages.
func CanAccessPackage(u *User, packageID string, catalog []PackageDefinition) bool {
	if u.FullAccess {
		return true
	}
	return slices.Contains(EffectivePackages(u, catalog), packageID)
}
