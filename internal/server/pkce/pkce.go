// Package pkce implements the Proof Key for Code Exchange transforms
// (RFC 7636) used to bind an authorization code to a client-held verifier.
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/dmitrijs2005/hiresify/internal/common"
)

// Method names a code challenge transform.
type Method string

const (
	MethodS256  Method = "s256"
	MethodPlain Method = "plain"
)

var errNoEntropy = errors.New("random source unavailable")

// Verifier length bounds from RFC 7636 section 4.1.
const (
	MinVerifierLength = 43
	MaxVerifierLength = 128
)

// ParseMethod normalizes a wire value ("S256", "s256", "plain").
// Anything else fails with common.ErrUnsupportedMethod.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(s)); m {
	case MethodS256, MethodPlain:
		return m, nil
	default:
		return "", common.ErrUnsupportedMethod
	}
}

// ComputeChallenge derives the challenge for verifier. S256 is the unpadded
// base64url SHA-256 digest of the verifier bytes; plain returns the verifier.
func ComputeChallenge(verifier string, method Method) (string, error) {
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		return base64.RawURLEncoding.EncodeToString(sum[:]), nil
	case MethodPlain:
		return verifier, nil
	default:
		return "", common.ErrUnsupportedMethod
	}
}

// ConfirmVerifier reports whether verifier produces challenge under method.
// The comparison runs in constant time. An unsupported method or a verifier
// outside the RFC length bounds never confirms.
func ConfirmVerifier(verifier, challenge string, method Method) bool {
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return false
	}
	computed, err := ComputeChallenge(verifier, method)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// NewVerifier returns a random 43-character verifier, the client side of the
// exchange.
func NewVerifier() (string, error) {
	b := common.GenerateRandByteArray(32)
	if b == nil {
		return "", errNoEntropy
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
