// Package services contains server-side business logic: the authentication
// flow controller (AuthService) and account administration (UserService).
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/hiresify/internal/common"
)

const instrumentationName = "github.com/dmitrijs2005/hiresify/internal/server/services"

type options struct {
	now    func() time.Time
	tracer trace.Tracer
}

// Option customizes a service at construction.
type Option func(*options)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithTracerProvider sets where spans are sent. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(instrumentationName) }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, tracer: otel.Tracer(instrumentationName)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// withTimeout bounds a single store call. A zero timeout keeps ctx as is.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// finishSpan records err on span and ends it.
func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, common.KindOf(err).String())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// mapStoreErr turns a repository or cache error into a flow error: a miss
// becomes notFound, anything else is reported as upstream unavailability.
func mapStoreErr(err error, notFound error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return notFound
	}
	return common.Upstream(err)
}

// bounded is a caller-supplied value and the most bytes it may hold.
type bounded struct {
	value string
	max   int
}

func tooLong(fields ...bounded) bool {
	for _, f := range fields {
		if len(f.value) > f.max {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// validAccount checks the bounds a username and password must meet.
func validAccount(username, plain string) bool {
	return username != "" && plain != "" && !tooLong(
		bounded{username, common.MaxUsernameLength},
		bounded{plain, common.MaxPasswordLength},
	)
}
