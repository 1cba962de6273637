package domain

import "time"

type TokenState string

const (
	TokenActive   TokenState = "active"
	TokenRedeemed TokenState = "redeemed"
	TokenExpired  TokenState = "expired"
)

// MagicToken is a stored login link. Only the hash of the raw token is kept.
type MagicToken struct {
	ID               string
	UserID           string
	TokenHash        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	UsedAt           *time.Time
	CreatedIP        *string
	CreatedUserAgent *string
}

// State derives the lifecycle state at now. Redeemed wins over expired.
func (t *MagicToken) State(now time.Time) TokenState {
	if t.UsedAt != nil {
		return TokenRedeemed
	}
	if t.ExpiresAt.UTC().Before(now.UTC()) {
		return TokenExpired
	}
	return TokenActive
}

// Fingerprint is the (IP, user agent) pair seen on a request.
type Fingerprint struct {
	IP        string
	UserAgent string
}

// Fingerprint returns what was captured when the token was issued.
func (t *MagicToken) Fingerprint() Fingerprint {
	var fp Fingerprint
	if t.CreatedIP != nil {
		fp.IP = *t.CreatedIP
	}
	if t.CreatedUserAgent != nil {
		fp.UserAgent = *t.CreatedUserAgent
	}
	return fp
}
