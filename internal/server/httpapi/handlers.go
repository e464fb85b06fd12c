package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/server/auth"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
	"github.com/dmitrijs2005/hiresify/internal/server/services"
)

const loginPath = "/user/login"

type csrfResponse struct {
	CSRFToken string    `json:"csrf_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in,omitempty"`
}

type meResponse struct {
	UserUID string `json:"user_uid"`
}

// beginSession serves the login and registration pages: a fresh CSRF session
// in a cookie, its token in the body for the form.
func (s *HTTPServer) beginSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.flow.BeginSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setCookie(w, common.SessionCookieName, sess.ID, "/", http.SameSiteLaxMode, sess.ExpireAt)
	writeJSON(w, http.StatusOK, csrfResponse{CSRFToken: sess.CSRFToken, ExpiresAt: sess.ExpireAt.UTC()})
}

func (s *HTTPServer) credentials(r *http.Request) (services.Credentials, error) {
	if err := r.ParseForm(); err != nil {
		return services.Credentials{}, common.ErrInvalidRequest
	}
	return services.Credentials{
		SessionID:   cookieValue(r, common.SessionCookieName),
		CSRFToken:   r.PostForm.Get("csrf_token"),
		Username:    r.PostForm.Get("username"),
		Password:    r.PostForm.Get("password"),
		RedirectURI: r.PostForm.Get("redirect_uri"),
	}, nil
}

func (s *HTTPServer) login(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credentials(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.flow.Login(r.Context(), cred)
	if errors.Is(err, common.ErrUserNotFound) || errors.Is(err, common.ErrPasswordIncorrect) {
		err = errInvalidCredentials
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.signedIn(w, r, res)
}

func (s *HTTPServer) register(w http.ResponseWriter, r *http.Request) {
	cred, err := s.credentials(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.flow.Register(r.Context(), cred)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.signedIn(w, r, res)
}

// signedIn swaps the CSRF session cookie for the user session one.
func (s *HTTPServer) signedIn(w http.ResponseWriter, r *http.Request, res *services.LoginResult) {
	s.setCookie(w, common.SessionCookieName, res.Session.ID, "/", http.SameSiteLaxMode, res.Session.ExpireAt)
	http.Redirect(w, r, res.RedirectURI, http.StatusSeeOther)
}

// authorize sends a signed-in browser back to the client with a code.
// Browsers without a live session are sent to the login page first and
// come back here afterwards.
func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location, err := s.flow.Authorize(r.Context(), services.AuthorizeRequest{
		SessionID:           cookieValue(r, common.SessionCookieName),
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
	})
	switch {
	case errors.Is(err, common.ErrNoSession), errors.Is(err, common.ErrSessionInvalidOrExpired):
		back := url.Values{"redirect_uri": {r.URL.RequestURI()}}
		http.Redirect(w, r, loginPath+"?"+back.Encode(), http.StatusFound)
	case err != nil:
		s.writeError(w, r, err)
	default:
		http.Redirect(w, r, location, http.StatusFound)
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *HTTPServer) issueToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, common.ErrInvalidRequest)
		return
	}

	pair, err := s.flow.ExchangeCode(r.Context(), services.ExchangeRequest{
		ClientID:     r.PostForm.Get("client_id"),
		Code:         r.PostForm.Get("code"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		Client: models.ClientInfo{
			Device:   optional(r.PostForm.Get("device")),
			IP:       optional(clientIP(r)),
			Platform: optional(r.PostForm.Get("platform")),
		},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setCookie(w, common.AccessCookieName, pair.Access.Value, "/", http.SameSiteStrictMode, pair.Access.ExpireAt)
	s.setCookie(w, common.RefreshCookieName, pair.Refresh.Value, refreshCookiePath, http.SameSiteStrictMode, pair.Refresh.ExpireAt)

	resp := s.tokenResponse(pair.Access)
	resp.RefreshExpiresIn = int64(pair.Refresh.ExpireAt.Sub(s.now()) / time.Second)
	writeJSON(w, http.StatusCreated, resp)
}

// refreshValue takes the refresh token from its cookie, or from the form
// for clients that do not keep cookies.
func refreshValue(r *http.Request) string {
	if v := cookieValue(r, common.RefreshCookieName); v != "" {
		return v
	}
	return r.PostFormValue("refresh_token")
}

func (s *HTTPServer) refreshToken(w http.ResponseWriter, r *http.Request) {
	access, err := s.flow.Refresh(r.Context(), refreshValue(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setCookie(w, common.AccessCookieName, access.Value, "/", http.SameSiteStrictMode, access.ExpireAt)
	writeJSON(w, http.StatusCreated, s.tokenResponse(access))
}

func (s *HTTPServer) revokeToken(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.Revoke(r.Context(), refreshValue(r)); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.clearCookie(w, common.RefreshCookieName, refreshCookiePath, http.SameSiteStrictMode)
	s.clearCookie(w, common.AccessCookieName, "/", http.SameSiteStrictMode)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{UserUID: userID})
}

func (s *HTTPServer) tokenResponse(access *auth.Token) tokenResponse {
	return tokenResponse{
		AccessToken: access.Value,
		TokenType:   "Bearer",
		ExpiresIn:   int64(access.ExpireAt.Sub(s.now()) / time.Second),
	}
}
