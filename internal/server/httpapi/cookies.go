package httpapi

import (
	"net/http"
	"time"
)

// refreshCookiePath keeps the refresh token away from every endpoint but
// the token ones.
const refreshCookiePath = "/token"

// setCookie writes an HttpOnly cookie living until expireAt.
func (s *HTTPServer) setCookie(w http.ResponseWriter, name, value, path string, sameSite http.SameSite, expireAt time.Time) {
	maxAge := int(expireAt.Sub(s.now()) / time.Second)
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   maxAge,
		Expires:  expireAt.UTC(),
		HttpOnly: true,
		Secure:   s.opts.Production,
		SameSite: sameSite,
	})
}

func (s *HTTPServer) clearCookie(w http.ResponseWriter, name, path string, sameSite http.SameSite) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		HttpOnly: true,
		Secure:   s.opts.Production,
		SameSite: sameSite,
	})
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
