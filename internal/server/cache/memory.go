package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/common"
)

type memEntry struct {
	value    []byte
	expireAt time.Time
}

// MemoryStore is an in-process Store for development and tests. Expired
// entries are dropped lazily on access.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]memEntry
	now  func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{data: make(map[string]memEntry), now: now}
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = memEntry{value: v, expireAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(key)
}

func (s *MemoryStore) GetDel(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	delete(s.data, key)
	return v, nil
}

func (s *MemoryStore) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// lookup must be called with mu held.
func (s *MemoryStore) lookup(key string) ([]byte, error) {
	e, ok := s.data[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if !s.now().Before(e.expireAt) {
		delete(s.data, key)
		return nil, common.ErrorNotFound
	}
	return e.value, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
