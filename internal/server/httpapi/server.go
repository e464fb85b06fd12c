// Package httpapi is the browser-facing HTTP transport of the auth flow:
// login and registration pages, the authorization endpoint and the token
// endpoints. It maps flow errors to status codes and carries sessions and
// tokens in cookies.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/logging"
	"github.com/dmitrijs2005/hiresify/internal/server/auth"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
	"github.com/dmitrijs2005/hiresify/internal/server/services"
)

// AuthFlow is the part of services.AuthService the transport drives.
type AuthFlow interface {
	BeginSession(ctx context.Context) (*models.CSRFSession, error)
	Register(ctx context.Context, cred services.Credentials) (*services.LoginResult, error)
	Login(ctx context.Context, cred services.Credentials) (*services.LoginResult, error)
	Authorize(ctx context.Context, req services.AuthorizeRequest) (string, error)
	ExchangeCode(ctx context.Context, req services.ExchangeRequest) (*services.TokenPair, error)
	Refresh(ctx context.Context, rawRefresh string) (*auth.Token, error)
	Revoke(ctx context.Context, rawRefresh string) error
	VerifyAccess(rawAccess string) (string, error)
}

// Options tunes the transport.
type Options struct {
	// Production turns on Secure cookies and HSTS.
	Production bool
	// LoginRate and LoginBurst bound credential submissions per client IP.
	LoginRate  float64
	LoginBurst int
	Now        func() time.Time
}

const shutdownTimeout = 5 * time.Second

type HTTPServer struct {
	address string
	flow    AuthFlow
	logger  logging.Logger
	opts    Options
	limiter *RateLimiter
	now     func() time.Time
}

func NewHTTPServer(a string, l logging.Logger, flow AuthFlow, opts Options) *HTTPServer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := l.With("module", "http_server")
	return &HTTPServer{
		address: a,
		flow:    flow,
		logger:  logger,
		opts:    opts,
		limiter: NewRateLimiter(opts.LoginRate, opts.LoginBurst, defaultMaxLimiters, logger),
		now:     now,
	}
}

// Handler returns the routed handler with the middleware stack applied.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /user/login", s.beginSession)
	mux.HandleFunc("GET /user/register", s.beginSession)
	mux.Handle("POST /user/login", s.rateLimit(http.HandlerFunc(s.login)))
	mux.Handle("POST /user/register", s.rateLimit(http.HandlerFunc(s.register)))
	mux.HandleFunc("GET /user/authorize", s.authorize)
	mux.Handle("GET /user/me", s.requireAccess(http.HandlerFunc(s.me)))

	mux.HandleFunc("POST /token/issue", s.issueToken)
	mux.HandleFunc("POST /token/refresh", s.refreshToken)
	mux.HandleFunc("POST /token/revoke", s.revokeToken)

	return Chain(mux, s.recoverPanic, s.secureHeaders, limitBody)
}

func (s *HTTPServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
