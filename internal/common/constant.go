// Package common contains shared constants and sentinel errors used across
// hiresify components.
package common

// Cookie keys used by the HTTP layer. Session and refresh cookies are kept
// distinct so the refresh cookie can be scoped to the token endpoints.
const (
	SessionCookieName = "session_id"
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// AuthorizationHeaderName carries "Bearer <access token>" for non-browser callers.
const AuthorizationHeaderName = "Authorization"

// Upper bounds on caller-supplied fields, in bytes.
const (
	MaxUsernameLength    = 30
	MaxPasswordLength    = 128
	MaxClientIDLength    = 128
	MaxCodeLength        = 128
	MaxStateLength       = 512
	MaxRedirectURILength = 2048
	MaxDeviceLength      = 128
	MaxIPLength          = 45
	MaxPlatformLength    = 32
)
