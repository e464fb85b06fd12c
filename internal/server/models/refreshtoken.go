package models

import "time"

// RefreshToken is a ledger record. TokenHash is the fingerprint of the bearer
// value; the raw token is never stored. ID equals the token's jti claim.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpireAt  time.Time
	Revoked   bool

	Device   *string
	IP       *string
	Platform *string
}

// Usable reports whether the record can still mint access tokens at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpireAt)
}

// ClientInfo carries optional details about the client a refresh token was
// issued to.
type ClientInfo struct {
	Device   *string
	IP       *string
	Platform *string
}
