package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

// CredentialVerifier checks a session credential and returns its subject.
type CredentialVerifier interface {
	Verify(raw string) (string, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

// SessionUsecase resolves session credentials back to users.
type SessionUsecase struct {
	verifier CredentialVerifier
	users    UserLookup
	catalog  PackageLister
}

func NewSessionUsecase(verifier CredentialVerifier, users UserLookup, catalog PackageLister) *SessionUsecase {
	return &SessionUsecase{verifier: verifier, users: users, catalog: catalog}
}

// Authenticate returns domain.ErrUnauthenticated for bad credentials or unknown
// users and domain.ErrForbidden for inactive users.
func (s *SessionUsecase) Authenticate(ctx context.Context, credential string) (*domain.User, error) {
	if credential == "" {
		return nil, domain.ErrUnauthenticated
	}
	subject, err := s.verifier.Verify(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if _, err := uuid.Parse(subject); err != nil {
		return nil, fmt.Errorf("%w: malformed subject", domain.ErrUnauthenticated)
	}

	user, err := s.users.FindByID(ctx, subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: user inactive", domain.ErrForbidden)
	}
	return user, nil
}

func (s *SessionUsecase) RequireEntitlement(user *domain.User) error {
	if !user.HasAnyPackage() {
		return fmt.Errorf("%w: no package", domain.ErrForbidden)
	}
	return nil
}

func (s *SessionUsecase) RequirePackage(user *domain.User, packageID string) error {
	if !domain.CanAccessPackage(user, packageID, s.catalogPackages()) {
		return fmt.Errorf("%w: package %s", domain.ErrForbidden, packageID)
	}
	return nil
}

// EffectivePackages is the user's package list as served by /auth/me.
func (s *SessionUsecase) EffectivePackages(user *domain.User) []string {
	return domain.EffectivePackages(user, s.catalogPackages())
}

func (s *SessionUsecase) catalogPackages() []domain.PackageDefinition {
	if s.catalog == nil {
		return nil
	}
	pkgs, err := s.catalog.ListPackages()
	if err != nil {
		return nil
	}
	return pkgs
}
