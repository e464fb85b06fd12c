// Package models defines the server's persisted and cached records.
package models

import "time"

// Expirable is implemented by every cached record.
type Expirable interface {
	Expired(now time.Time) bool
	Remaining(now time.Time) time.Duration
}

// Identifiable is implemented by records addressed by a random identifier.
type Identifiable interface {
	Identity() string
}

// Validity is the lifetime window shared by cached records. A record is
// valid strictly before ExpireAt.
type Validity struct {
	IssuedAt time.Time `json:"issued_at"`
	ExpireAt time.Time `json:"expire_at"`
}

func (v Validity) Expired(now time.Time) bool {
	return !now.Before(v.ExpireAt)
}

// Remaining is the time left at now, never negative.
func (v Validity) Remaining(now time.Time) time.Duration {
	if d := v.ExpireAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// CSRFSession binds a one-time CSRF token to an anonymous browser session.
type CSRFSession struct {
	ID string `json:"id"`
	Validity
	CSRFToken string `json:"csrf_token"`
}

func (s *CSRFSession) Identity() string { return s.ID }

// UserSession marks a browser as authenticated as UserID.
type UserSession struct {
	ID string `json:"id"`
	Validity
	UserID string `json:"user_uid"`
}

func (s *UserSession) Identity() string { return s.ID }

// AuthorizationCode is a single-use grant bound to a PKCE challenge, a
// client and a redirect URI.
type AuthorizationCode struct {
	Code string `json:"code"`
	Validity
	ClientID            string `json:"client_id"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	RedirectURI         string `json:"redirect_uri"`
	UserID              string `json:"user_uid"`
}

func (c *AuthorizationCode) Identity() string { return c.Code }
