package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenInvalid       = errors.New("token is invalid or expired")
	ErrSuspiciousLogin    = errors.New("suspicious login attempt")
	ErrRateLimited        = errors.New("too many login link requests")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotConfigured      = errors.New("required configuration is missing")
	ErrVerificationFailed = errors.New("upstream verification failed")
	ErrInvalidRedirect    = errors.New("redirect target is not allowed")
	ErrNothingToGrant     = errors.New("nothing to grant")
)

type User struct {
	ID         string
	Email      string
	FullAccess bool
	IsActive   bool
	Packages   []string // explicit grants only, see EffectivePackages
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasAnyPackage reports whether the user is entitled to at least one package.
func (u *User) HasAnyPackage() bool {
	return u.FullAccess || len(u.Packages) > 0
}

type PackageGrant struct {
	UserID    string
	PackageID string
	GrantedAt time.Time
}

// NormalizeEmail is applied at every read and write of an email address;
// email is the only natural key for users.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePackageIDs drops empty ids and duplicates, keeping first-seen order.
func NormalizePackageIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
