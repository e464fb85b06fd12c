// Package auth encodes and verifies the JWT access and refresh tokens issued
// by the server. Tokens are HS256-signed with a key injected at construction.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind distinguishes access from refresh tokens. It is carried in the "typ"
// claim so a refresh token is never accepted where an access token is due.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

var ErrEmptySecret = errors.New("signing secret must not be empty")

// Claims is the fixed claim shape of every token.
type Claims struct {
	jwt.RegisteredClaims
	Kind Kind `json:"typ"`
}

// UserUID returns the subject claim.
func (c *Claims) UserUID() string { return c.Subject }

// Token is a freshly minted bearer value with its validity window.
type Token struct {
	Kind     Kind
	Value    string
	ID       string
	IssuedAt time.Time
	ExpireAt time.Time
}

// CodecConfig configures a Codec. Now defaults to time.Now.
type CodecConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

// Codec is safe for concurrent use; all fields are fixed at construction.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrEmptySecret
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Codec{
		secret:   secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      now,
		parser:   jwt.NewParser(opts...),
	}, nil
}

// Generate mints a token of the given kind for userUID valid for ttl.
// Timestamps are truncated to whole seconds, the resolution of JWT dates.
func (c *Codec) Generate(kind Kind, userUID string, ttl time.Duration) (*Token, error) {
	issuedAt := c.now().Truncate(time.Second)
	expireAt := issuedAt.Add(ttl)
	id := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userUID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expireAt),
			ID:        id,
		},
		Kind: kind,
	}
	if c.audience != "" {
		claims.Audience = jwt.ClaimStrings{c.audience}
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, err
	}

	return &Token{
		Kind:     kind,
		Value:    value,
		ID:       id,
		IssuedAt: issuedAt,
		ExpireAt: expireAt,
	}, nil
}

// Verify parses raw and returns its claims if the signature, algorithm,
// issuer, audience, kind and expiry all check out. Expiry is exclusive: a
// token is invalid from exp onwards. Any failure yields (nil, false).
func (c *Codec) Verify(raw string, kind Kind) (*Claims, bool) {
	claims := &Claims{}
	token, err := c.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}
	if claims.Kind != kind || claims.Subject == "" {
		return nil, false
	}
	return claims, true
}

// Fingerprint is the value the refresh ledger stores in place of the bearer
// token: the unpadded base64url SHA-256 of raw.
func Fingerprint(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
