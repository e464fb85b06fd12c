package cache

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/logging"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

type backend struct {
	name  string
	store func(t *testing.T) Store
}

// Backends do not share the cache clock, so their own eviction never
// hides a logically expired record.
var backends = []backend{
	{"memory", func(t *testing.T) Store { return NewMemoryStore(nil) }},
	{"redis", func(t *testing.T) Store { s, _ := newRedisStore(t); return s }},
}

func TestSessionCache_PutGetDelete(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c := New(b.store(t), Options{Prefix: "hiresify"})

			type rec struct{ Name string }
			require.NoError(t, c.Put(ctx, NamespaceSession, "id1", rec{Name: "x"}, time.Minute))

			var got rec
			require.NoError(t, c.Get(ctx, NamespaceSession, "id1", &got))
			assert.Equal(t, "x", got.Name)

			err := c.Get(ctx, NamespaceCSRF, "id1", &got)
			assert.ErrorIs(t, err, common.ErrorNotFound, "namespaces are disjoint")

			require.NoError(t, c.Delete(ctx, NamespaceSession, "id1"))
			err = c.Get(ctx, NamespaceSession, "id1", &got)
			assert.ErrorIs(t, err, common.ErrorNotFound)

			require.NoError(t, c.Delete(ctx, NamespaceSession, "missing"))
		})
	}
}

func TestSessionCache_PutRejectsNonPositiveTTL(t *testing.T) {
	c := New(NewMemoryStore(nil), Options{})
	err := c.Put(context.Background(), NamespaceCode, "x", struct{}{}, 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestSessionCache_ExpiryBoundary(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{t: t0}
			c := New(b.store(t), Options{Now: clock.Now})

			csrf, err := c.NewCSRFSession(ctx, time.Minute)
			require.NoError(t, err)
			user, err := c.NewUserSession(ctx, "u1", time.Minute)
			require.NoError(t, err)
			code, err := c.IssueCode(ctx, CodeRequest{UserID: "u1", ClientID: "c1"}, time.Minute)
			require.NoError(t, err)

			clock.Set(t0.Add(time.Minute - time.Second))
			_, err = c.CSRFSession(ctx, csrf.ID)
			require.NoError(t, err, "csrf valid at expire_at-1s")
			_, err = c.UserSession(ctx, user.ID)
			require.NoError(t, err, "session valid at expire_at-1s")

			clock.Set(t0.Add(time.Minute + time.Second))
			_, err = c.CSRFSession(ctx, csrf.ID)
			assert.ErrorIs(t, err, common.ErrorNotFound, "csrf invalid at expire_at+1s")
			_, err = c.UserSession(ctx, user.ID)
			assert.ErrorIs(t, err, common.ErrorNotFound, "session invalid at expire_at+1s")
			_, err = c.ConsumeCode(ctx, code.Code)
			assert.ErrorIs(t, err, common.ErrorNotFound, "code invalid at expire_at+1s")
		})
	}
}

func TestSessionCache_ExclusiveAtExpireAt(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	c := New(NewMemoryStore(nil), Options{Now: clock.Now})

	s, err := c.NewUserSession(ctx, "u1", time.Minute)
	require.NoError(t, err)

	clock.Set(s.ExpireAt)
	_, err = c.UserSession(ctx, s.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSessionCache_StaleKeyRemoved(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	clock := &fakeClock{t: t0}
	c := New(store, Options{Prefix: "hiresify", Now: clock.Now})

	s, err := c.NewCSRFSession(ctx, time.Minute)
	require.NoError(t, err)
	key := "hiresify:csrf:" + s.ID
	require.True(t, mr.Exists(key))

	clock.Set(t0.Add(2 * time.Minute))
	_, err = c.CSRFSession(ctx, s.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.False(t, mr.Exists(key))
}

type failingDel struct {
	Store
}

func (failingDel) Del(context.Context, string) error { return errors.New("del refused") }

func TestSessionCache_StaleKeyCleanupFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	var buf bytes.Buffer
	c := New(failingDel{Store: NewMemoryStore(nil)}, Options{
		Now:    clock.Now,
		Logger: logging.NewJSONLogger(&buf, slog.LevelDebug),
	})

	s, err := c.NewCSRFSession(ctx, time.Minute)
	require.NoError(t, err)

	clock.Set(t0.Add(time.Minute))
	_, err = c.CSRFSession(ctx, s.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	out := buf.String()
	assert.Contains(t, out, "stale cache key not removed")
	assert.Contains(t, out, "del refused")
	assert.Contains(t, out, `"namespace":"csrf"`)
}

func TestSessionCache_BackendEviction(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	c := New(store, Options{})

	s, err := c.NewUserSession(ctx, "u1", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, mr.TTL("session:"+s.ID))

	mr.FastForward(11 * time.Second)
	_, err = c.UserSession(ctx, s.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSessionCache_NewSessionsUseDefaults(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: t0}
	c := New(NewMemoryStore(nil), Options{CSRFTTL: 20 * time.Minute, Now: clock.Now})

	csrf, err := c.NewCSRFSession(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(20*time.Minute), csrf.ExpireAt)
	assert.Len(t, csrf.ID, 2*idBytes)
	assert.Len(t, csrf.CSRFToken, 2*idBytes)
	assert.NotEqual(t, csrf.ID, csrf.CSRFToken)

	code, err := c.IssueCode(ctx, CodeRequest{UserID: "u1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(DefaultCodeTTL), code.ExpireAt)
	assert.Equal(t, DefaultSessionTTL, c.TTL(NamespaceSession))
}

func TestSessionCache_ConsumeCodeOnce(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c := New(b.store(t), Options{})

			req := CodeRequest{
				UserID:              "u1",
				ClientID:            "c1",
				CodeChallenge:       "challenge",
				CodeChallengeMethod: "s256",
				RedirectURI:         "https://app/cb",
			}
			issued, err := c.IssueCode(ctx, req, time.Minute)
			require.NoError(t, err)

			got, err := c.ConsumeCode(ctx, issued.Code)
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.Equal(t, "c1", got.ClientID)
			assert.Equal(t, "challenge", got.CodeChallenge)
			assert.Equal(t, "s256", got.CodeChallengeMethod)
			assert.Equal(t, "https://app/cb", got.RedirectURI)

			_, err = c.ConsumeCode(ctx, issued.Code)
			assert.ErrorIs(t, err, common.ErrorNotFound)
		})
	}
}

func TestSessionCache_ConsumeCodeConcurrent(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			c := New(b.store(t), Options{})

			issued, err := c.IssueCode(ctx, CodeRequest{UserID: "u1", ClientID: "c1"}, time.Minute)
			require.NoError(t, err)

			const workers = 16
			var (
				wg       sync.WaitGroup
				wins     atomic.Int32
				notFound atomic.Int32
				start    = make(chan struct{})
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := c.ConsumeCode(ctx, issued.Code)
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, common.ErrorNotFound):
						notFound.Add(1)
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, int32(1), wins.Load())
			assert.Equal(t, int32(workers-1), notFound.Load())
		})
	}
}

func TestSessionCache_BackendFailure(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)
	c := New(store, Options{})

	mr.Close()

	_, err := c.NewCSRFSession(ctx, time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)

	_, err = c.ConsumeCode(ctx, "whatever")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}

func TestSessionCache_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	c := New(store, Options{})

	require.NoError(t, store.Set(ctx, "session:bad", []byte("{not json"), time.Minute))
	_, err := c.UserSession(ctx, "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorNotFound)
}
