package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/logging"
	"github.com/dmitrijs2005/hiresify/internal/server/auth"
	"github.com/dmitrijs2005/hiresify/internal/server/cache"
	"github.com/dmitrijs2005/hiresify/internal/server/config"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
	"github.com/dmitrijs2005/hiresify/internal/server/password"
	"github.com/dmitrijs2005/hiresify/internal/server/pkce"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/repomanager"
)

// TokenPair is the result of a successful code exchange.
type TokenPair struct {
	Access  *auth.Token
	Refresh *auth.Token
}

// Credentials is a login or registration form submission.
type Credentials struct {
	SessionID   string
	CSRFToken   string
	Username    string
	Password    string
	RedirectURI string
}

// LoginResult carries the new user session and where the browser goes next.
type LoginResult struct {
	Session     *models.UserSession
	RedirectURI string
}

// AuthorizeRequest is an OAuth2 authorization request from a browser
// holding a user session.
type AuthorizeRequest struct {
	SessionID           string
	ResponseType        string
	ClientID            string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectURI         string
	State               string
}

// ExchangeRequest redeems an authorization code.
type ExchangeRequest struct {
	ClientID     string
	Code         string
	CodeVerifier string
	RedirectURI  string
	Client       models.ClientInfo
}

// AuthService drives the browser login and authorization-code flow:
// CSRF session, credentials, user session, code, token pair, refresh,
// revoke. It owns no state besides its collaborators and fixed lifetimes.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sessions    *cache.SessionCache
	codec       *auth.Codec
	hasher      password.Hasher
	logger      logging.Logger
	tracer      trace.Tracer
	now         func() time.Time

	accessTTL    time.Duration
	refreshTTL   time.Duration
	sessionTTL   time.Duration
	codeTTL      time.Duration
	storeTimeout time.Duration
}

func NewAuthService(
	db *sql.DB,
	m repomanager.RepositoryManager,
	sessions *cache.SessionCache,
	codec *auth.Codec,
	hasher password.Hasher,
	cfg *config.Config,
	logger logging.Logger,
	opts ...Option,
) *AuthService {
	o := buildOptions(opts)
	return &AuthService{
		db:           db,
		repomanager:  m,
		sessions:     sessions,
		codec:        codec,
		hasher:       hasher,
		logger:       logger.With("module", "auth"),
		tracer:       o.tracer,
		now:          o.now,
		accessTTL:    cfg.AccessTokenValidityDuration,
		refreshTTL:   cfg.RefreshTokenValidityDuration(),
		sessionTTL:   cfg.SessionValidityDuration,
		codeTTL:      cfg.CodeValidityDuration,
		storeTimeout: cfg.StoreTimeout,
	}
}

// BeginSession starts a login or registration page: a fresh anonymous
// session with its one-time CSRF token.
func (s *AuthService) BeginSession(ctx context.Context) (_ *models.CSRFSession, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.begin_session")
	defer func() { finishSpan(span, err) }()

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	sess, err := s.sessions.NewCSRFSession(sctx, s.sessionTTL)
	if err != nil {
		return nil, common.Upstream(err)
	}
	return sess, nil
}

// Register creates an account and signs the browser in.
func (s *AuthService) Register(ctx context.Context, cred Credentials) (_ *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.register")
	defer func() { finishSpan(span, err) }()

	csrf, err := s.checkCSRF(ctx, cred.SessionID, cred.CSRFToken)
	if err != nil {
		return nil, err
	}
	if !validAccount(cred.Username, cred.Password) {
		return nil, common.ErrInvalidRequest
	}

	hash, err := s.hasher.Hash(cred.Password)
	if err != nil {
		return nil, err
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).Create(sctx, &models.User{UserName: cred.Username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrUsernameConflict
		}
		return nil, common.Upstream(err)
	}
	s.logger.Info(ctx, "user registered", "user_uid", user.ID)

	return s.signIn(ctx, csrf, user.ID, cred.RedirectURI)
}

// Login verifies credentials and signs the browser in.
func (s *AuthService) Login(ctx context.Context, cred Credentials) (_ *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.login")
	defer func() { finishSpan(span, err) }()

	csrf, err := s.checkCSRF(ctx, cred.SessionID, cred.CSRFToken)
	if err != nil {
		return nil, err
	}
	if tooLong(
		bounded{cred.Username, common.MaxUsernameLength},
		bounded{cred.Password, common.MaxPasswordLength},
	) {
		return nil, common.ErrInvalidRequest
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).GetUserByLogin(sctx, cred.Username)
	if err != nil {
		return nil, mapStoreErr(err, common.ErrUserNotFound)
	}
	if !s.hasher.Verify(cred.Password, user.PasswordHash) {
		s.logger.Warn(ctx, "password mismatch", "user_uid", user.ID)
		return nil, common.ErrPasswordIncorrect
	}

	return s.signIn(ctx, csrf, user.ID, cred.RedirectURI)
}

func (s *AuthService) checkCSRF(ctx context.Context, sessionID, token string) (*models.CSRFSession, error) {
	if sessionID == "" {
		return nil, common.ErrNoSession
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	sess, err := s.sessions.CSRFSession(sctx, sessionID)
	if err != nil {
		return nil, mapStoreErr(err, common.ErrSessionInvalidOrExpired)
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(sess.CSRFToken)) != 1 {
		return nil, common.ErrCSRFInvalid
	}
	return sess, nil
}

// signIn retires the CSRF session and opens a user session in its place.
func (s *AuthService) signIn(ctx context.Context, csrf *models.CSRFSession, userID, redirectURI string) (*LoginResult, error) {
	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	if err := s.sessions.Delete(sctx, cache.NamespaceCSRF, csrf.ID); err != nil {
		s.logger.Warn(ctx, "csrf session not deleted", "error", err)
	}

	sess, err := s.sessions.NewUserSession(sctx, userID, s.sessionTTL)
	if err != nil {
		return nil, common.Upstream(err)
	}
	return &LoginResult{Session: sess, RedirectURI: LocalRedirect(redirectURI)}, nil
}

// LocalRedirect returns uri if it is a path on this server and "/"
// otherwise, so a login form cannot bounce the browser to another origin.
// Control characters are refused outright: browsers drop tab, CR and LF
// while parsing, which would turn "/\t/host" into "//host".
func LocalRedirect(uri string) string {
	if len(uri) > common.MaxRedirectURILength ||
		!strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "//") || strings.HasPrefix(uri, "/\\") {
		return "/"
	}
	for i := 0; i < len(uri); i++ {
		if uri[i] < 0x20 || uri[i] == 0x7f {
			return "/"
		}
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return uri
}

// Authorize issues an authorization code to the user behind req.SessionID and
// returns the client redirect URL carrying it.
func (s *AuthService) Authorize(ctx context.Context, req AuthorizeRequest) (_ string, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.authorize", trace.WithAttributes(
		attribute.String("oauth.client_id", req.ClientID),
		attribute.String("oauth.pkce.method", req.CodeChallengeMethod),
	))
	defer func() { finishSpan(span, err) }()

	if req.ResponseType != "" && req.ResponseType != "code" {
		return "", common.ErrUnsupportedResponseType
	}
	method, err := pkce.ParseMethod(req.CodeChallengeMethod)
	if err != nil {
		return "", err
	}
	if req.ClientID == "" || req.CodeChallenge == "" || tooLong(
		bounded{req.ClientID, common.MaxClientIDLength},
		bounded{req.CodeChallenge, pkce.MaxVerifierLength},
		bounded{req.RedirectURI, common.MaxRedirectURILength},
		bounded{req.State, common.MaxStateLength},
	) {
		return "", common.ErrInvalidRequest
	}
	redirect, err := url.Parse(req.RedirectURI)
	if err != nil || !redirect.IsAbs() || redirect.Host == "" || redirect.Fragment != "" {
		return "", common.ErrInvalidRequest
	}

	if req.SessionID == "" {
		return "", common.ErrNoSession
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	sess, err := s.sessions.UserSession(sctx, req.SessionID)
	if err != nil {
		return "", mapStoreErr(err, common.ErrSessionInvalidOrExpired)
	}

	code, err := s.sessions.IssueCode(sctx, cache.CodeRequest{
		UserID:              sess.UserID,
		ClientID:            req.ClientID,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: string(method),
		RedirectURI:         req.RedirectURI,
	}, s.codeTTL)
	if err != nil {
		return "", common.Upstream(err)
	}
	s.logger.Info(ctx, "authorization code issued", "user_uid", sess.UserID, "client_id", req.ClientID)

	q := redirect.Query()
	q.Set("code", code.Code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()
	return redirect.String(), nil
}

// ExchangeCode redeems a code for an access and refresh token. The code is
// consumed before any check, so a failed exchange cannot be replayed.
func (s *AuthService) ExchangeCode(ctx context.Context, req ExchangeRequest) (_ *TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.exchange_code", trace.WithAttributes(
		attribute.String("oauth.client_id", req.ClientID),
	))
	defer func() { finishSpan(span, err) }()

	if req.Code == "" {
		return nil, common.ErrCodeInvalidOrExpired
	}
	if tooLong(
		bounded{req.ClientID, common.MaxClientIDLength},
		bounded{req.Code, common.MaxCodeLength},
		bounded{req.CodeVerifier, pkce.MaxVerifierLength},
		bounded{req.RedirectURI, common.MaxRedirectURILength},
		bounded{deref(req.Client.Device), common.MaxDeviceLength},
		bounded{deref(req.Client.IP), common.MaxIPLength},
		bounded{deref(req.Client.Platform), common.MaxPlatformLength},
	) {
		return nil, common.ErrInvalidRequest
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	code, err := s.sessions.ConsumeCode(sctx, req.Code)
	if err != nil {
		return nil, mapStoreErr(err, common.ErrCodeInvalidOrExpired)
	}
	span.SetAttributes(attribute.String("oauth.pkce.method", code.CodeChallengeMethod))

	if subtle.ConstantTimeCompare([]byte(req.ClientID), []byte(code.ClientID)) != 1 {
		return nil, common.ErrClientUnauthorized
	}
	if req.RedirectURI != code.RedirectURI {
		return nil, common.ErrRedirectURIInvalid
	}
	if !pkce.ConfirmVerifier(req.CodeVerifier, code.CodeChallenge, pkce.Method(code.CodeChallengeMethod)) {
		return nil, common.ErrVerifierInvalid
	}

	refresh, err := s.codec.Generate(auth.KindRefresh, code.UserID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	access, err := s.codec.Generate(auth.KindAccess, code.UserID, s.accessTTL)
	if err != nil {
		return nil, err
	}

	_, err = s.repomanager.RefreshTokens(s.db).Create(sctx, &models.RefreshToken{
		ID:        refresh.ID,
		UserID:    code.UserID,
		TokenHash: auth.Fingerprint(refresh.Value),
		IssuedAt:  refresh.IssuedAt,
		ExpireAt:  refresh.ExpireAt,
		Device:    req.Client.Device,
		IP:        req.Client.IP,
		Platform:  req.Client.Platform,
	})
	if err != nil {
		return nil, mapStoreErr(err, common.ErrUserNotFound)
	}
	s.logger.Info(ctx, "token pair issued", "user_uid", code.UserID, "client_id", code.ClientID, "jti", refresh.ID)

	return &TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh mints a new access token from a live refresh token. The refresh
// token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (_ *auth.Token, err error) {
	ctx, span := s.tracer.Start(ctx, "auth.refresh")
	defer func() { finishSpan(span, err) }()

	if rawRefresh == "" {
		return nil, common.ErrTokenNotFound
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	record, err := s.repomanager.RefreshTokens(s.db).Find(sctx, auth.Fingerprint(rawRefresh))
	if err != nil {
		return nil, mapStoreErr(err, common.ErrTokenNotFound)
	}
	if !record.Usable(s.now()) {
		return nil, common.ErrTokenRevokedOrExpired
	}
	claims, ok := s.codec.Verify(rawRefresh, auth.KindRefresh)
	if !ok || claims.UserUID() != record.UserID {
		return nil, common.ErrTokenRevokedOrExpired
	}

	access, err := s.codec.Generate(auth.KindAccess, record.UserID, s.accessTTL)
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "access token refreshed", "user_uid", record.UserID, "jti", record.ID)
	return access, nil
}

// Revoke retires a refresh token. Unknown tokens are accepted silently.
func (s *AuthService) Revoke(ctx context.Context, rawRefresh string) (err error) {
	ctx, span := s.tracer.Start(ctx, "auth.revoke")
	defer func() { finishSpan(span, err) }()

	if rawRefresh == "" {
		return nil
	}

	sctx, cancel := withTimeout(ctx, s.storeTimeout)
	defer cancel()

	found, err := s.repomanager.RefreshTokens(s.db).Revoke(sctx, auth.Fingerprint(rawRefresh))
	if err != nil {
		return common.Upstream(err)
	}
	if found {
		s.logger.Info(ctx, "refresh token revoked", "token", common.Abbrev(rawRefresh))
	}
	return nil
}

// VerifyAccess returns the user an access token was issued to.
func (s *AuthService) VerifyAccess(rawAccess string) (string, error) {
	claims, ok := s.codec.Verify(rawAccess, auth.KindAccess)
	if !ok {
		return "", common.ErrInvalidToken
	}
	return claims.UserUID(), nil
}
