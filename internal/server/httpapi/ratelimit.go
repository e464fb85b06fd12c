package httpapi

import (
	"container/list"
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/hiresify/internal/logging"
)

const defaultMaxLimiters = 10000

type limiterEntry struct {
	key     string
	limiter *rate.Limiter
}

// RateLimiter keeps one token bucket per client key. The least recently
// seen key is evicted once maxEntries is reached.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	limit      rate.Limit
	burst      int
	maxEntries int
	logger     logging.Logger
	now        func() time.Time
}

// NewRateLimiter returns a limiter allowing perSecond events with the given
// burst per key. A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond float64, burst, maxEntries int, logger logging.Logger) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if maxEntries <= 0 {
		maxEntries = defaultMaxLimiters
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RateLimiter{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		limit:      limit,
		burst:      burst,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.entries[key]; ok {
		rl.lru.MoveToFront(elem)
		return elem.Value.(*limiterEntry).limiter.AllowN(now, 1)
	}

	if len(rl.entries) >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &limiterEntry{key: key, limiter: rate.NewLimiter(rl.limit, rl.burst)}
	rl.entries[key] = rl.lru.PushFront(entry)
	return entry.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// evictOldest must be called with mu held.
func (rl *RateLimiter) evictOldest() {
	elem := rl.lru.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*limiterEntry)
	delete(rl.entries, entry.key)
	rl.lru.Remove(elem)
	rl.logger.Debug(context.Background(), "rate limiter eviction", "key", entry.key)
}

// clientIP is the peer address of r. Forwarding headers are ignored since
// they are client controlled.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
