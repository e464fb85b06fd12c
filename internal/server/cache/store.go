// Package cache holds the server's ephemeral state: CSRF sessions, user
// sessions and authorization codes, stored with a TTL in a key/value Store.
package cache

import (
	"context"
	"time"
)

// Store is a TTL-capable key/value backend. Get and GetDel return
// common.ErrorNotFound for a missing key; any other error is a backend
// failure.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// GetDel returns the value and removes the key atomically. Of several
	// concurrent callers at most one observes the value.
	GetDel(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
}
