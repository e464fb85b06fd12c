// Package common defines shared constants and sentinel errors used across
// the hiresify server. Callers should use errors.Is to match these values
// and KindOf to classify flow errors.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
)

// ErrorKind classifies an AuthError so the transport layer can pick a status
// code without inspecting individual sentinels.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnauthorized
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// AuthError is a flow-level failure. Msg is safe to show to the caller.
type AuthError struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *AuthError) Error() string { return e.Msg }

func newAuthError(kind ErrorKind, code, msg string) *AuthError {
	return &AuthError{Kind: kind, Code: code, Msg: msg}
}

// Flow errors. Messages for not-found and unauthorized cases are generic on
// purpose; they must not reveal which of several conditions failed.
var (
	ErrNoSession               = newAuthError(KindNotFound, "no_session", "session not found")
	ErrSessionInvalidOrExpired = newAuthError(KindNotFound, "session_invalid", "session invalid or expired")
	ErrCSRFInvalid             = newAuthError(KindUnauthorized, "csrf_invalid", "csrf token invalid")

	ErrUsernameConflict  = newAuthError(KindConflict, "username_conflict", "username already taken")
	ErrUserNotFound      = newAuthError(KindNotFound, "user_not_found", "user not found")
	ErrPasswordIncorrect = newAuthError(KindUnauthorized, "password_incorrect", "password incorrect")

	ErrCodeInvalidOrExpired = newAuthError(KindNotFound, "code_invalid", "code invalid or expired")
	ErrClientUnauthorized   = newAuthError(KindUnauthorized, "client_unauthorized", "client unauthorized")
	ErrRedirectURIInvalid   = newAuthError(KindUnauthorized, "redirect_uri_invalid", "redirect uri invalid")
	ErrVerifierInvalid      = newAuthError(KindUnauthorized, "verifier_invalid", "code verifier invalid")

	ErrTokenNotFound         = newAuthError(KindNotFound, "token_not_found", "token not found")
	ErrTokenRevokedOrExpired = newAuthError(KindUnauthorized, "token_revoked", "token revoked or expired")
	ErrInvalidToken          = newAuthError(KindUnauthorized, "invalid_token", "invalid token")

	ErrUnsupportedMethod       = newAuthError(KindValidation, "unsupported_method", "unsupported code challenge method")
	ErrUnsupportedResponseType = newAuthError(KindValidation, "unsupported_response_type", "unsupported response type")
	ErrInvalidRequest          = newAuthError(KindValidation, "invalid_request", "invalid request")

	ErrUpstreamUnavailable = newAuthError(KindUpstream, "upstream_unavailable", "service temporarily unavailable")
)

// KindOf reports the kind of the first AuthError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Upstream wraps a store failure so it matches ErrUpstreamUnavailable while
// keeping the cause for logs.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}
