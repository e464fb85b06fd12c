// Package logging is the structured logger used by the server and the admin
// tool. Records written under a traced context carry the trace and span ids.
package logging

import "context"

// Logger takes a message and alternating key/value pairs:
//
//	log.Info(ctx, "token issued", "user_uid", uid, "client_id", clientID)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always adds args.
	With(args ...any) Logger
}
