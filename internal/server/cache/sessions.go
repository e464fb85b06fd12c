package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/logging"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
)

// Namespace partitions the key space of a SessionCache.
type Namespace string

const (
	NamespaceCSRF    Namespace = "csrf"
	NamespaceSession Namespace = "session"
	NamespaceCode    Namespace = "code"
)

const idBytes = 32

// Default lifetimes used when a caller passes a zero TTL.
const (
	DefaultCSRFTTL    = 30 * time.Minute
	DefaultSessionTTL = 30 * time.Minute
	DefaultCodeTTL    = 5 * time.Minute
)

var ErrInvalidTTL = errors.New("ttl must be positive")

// Options configures a SessionCache. Zero TTLs fall back to the defaults.
type Options struct {
	Prefix     string
	CSRFTTL    time.Duration
	SessionTTL time.Duration
	CodeTTL    time.Duration
	Now        func() time.Time
	Logger     logging.Logger
}

// SessionCache stores CSRF sessions, user sessions and authorization codes
// in three namespaces of one Store. Every record is wrapped in an envelope
// carrying its expiry, and a record is treated as absent from that instant
// on whether or not the backend has evicted it yet.
type SessionCache struct {
	store  Store
	prefix string
	ttl    map[Namespace]time.Duration
	now    func() time.Time
	logger logging.Logger
}

type envelope struct {
	ExpireAt time.Time       `json:"expire_at"`
	Data     json.RawMessage `json:"data"`
}

func New(store Store, opts Options) *SessionCache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	var logger logging.Logger = logging.Discard()
	if opts.Logger != nil {
		logger = opts.Logger
	}
	return &SessionCache{
		store:  store,
		prefix: opts.Prefix,
		ttl: map[Namespace]time.Duration{
			NamespaceCSRF:    orDefault(opts.CSRFTTL, DefaultCSRFTTL),
			NamespaceSession: orDefault(opts.SessionTTL, DefaultSessionTTL),
			NamespaceCode:    orDefault(opts.CodeTTL, DefaultCodeTTL),
		},
		now:    now,
		logger: logger,
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// TTL returns the default lifetime of records in ns.
func (c *SessionCache) TTL(ns Namespace) time.Duration {
	return c.ttl[ns]
}

func (c *SessionCache) key(ns Namespace, id string) string {
	if c.prefix == "" {
		return string(ns) + ":" + id
	}
	return c.prefix + ":" + string(ns) + ":" + id
}

// Put stores record under ns/id for ttl.
func (c *SessionCache) Put(ctx context.Context, ns Namespace, id string, record any, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return c.put(ctx, ns, id, record, c.validity(ns, ttl))
}

func (c *SessionCache) put(ctx context.Context, ns Namespace, id string, record any, v models.Validity) error {
	ttl := v.ExpireAt.Sub(v.IssuedAt)
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", ns, err)
	}
	raw, err := json.Marshal(envelope{ExpireAt: v.ExpireAt, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", ns, err)
	}
	return c.store.Set(ctx, c.key(ns, id), raw, ttl)
}

// Get decodes the record stored under ns/id into dst. It returns
// common.ErrorNotFound when the key is missing or logically expired.
func (c *SessionCache) Get(ctx context.Context, ns Namespace, id string, dst any) error {
	raw, err := c.store.Get(ctx, c.key(ns, id))
	if err != nil {
		return err
	}
	data, err := c.open(ns, raw)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			if derr := c.store.Del(ctx, c.key(ns, id)); derr != nil {
				c.logger.Debug(ctx, "stale cache key not removed", "namespace", string(ns), "error", derr)
			}
		}
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s record: %w", ns, err)
	}
	return nil
}

// Delete removes ns/id. Missing keys are not an error.
func (c *SessionCache) Delete(ctx context.Context, ns Namespace, id string) error {
	return c.store.Del(ctx, c.key(ns, id))
}

func (c *SessionCache) open(ns Namespace, raw []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s envelope: %w", ns, err)
	}
	if !c.now().Before(env.ExpireAt) {
		return nil, common.ErrorNotFound
	}
	return env.Data, nil
}

func (c *SessionCache) validity(ns Namespace, ttl time.Duration) models.Validity {
	if ttl <= 0 {
		ttl = c.ttl[ns]
	}
	now := c.now()
	return models.Validity{IssuedAt: now, ExpireAt: now.Add(ttl)}
}

// NewCSRFSession creates and stores an anonymous session with a fresh
// one-time CSRF token. A zero ttl uses the namespace default.
func (c *SessionCache) NewCSRFSession(ctx context.Context, ttl time.Duration) (*models.CSRFSession, error) {
	id, err := common.MakeRandHexString(idBytes)
	if err != nil {
		return nil, err
	}
	token, err := common.MakeRandHexString(idBytes)
	if err != nil {
		return nil, err
	}
	s := &models.CSRFSession{ID: id, Validity: c.validity(NamespaceCSRF, ttl), CSRFToken: token}
	if err := c.put(ctx, NamespaceCSRF, id, s, s.Validity); err != nil {
		return nil, err
	}
	return s, nil
}

// CSRFSession loads a CSRF session by id.
func (c *SessionCache) CSRFSession(ctx context.Context, id string) (*models.CSRFSession, error) {
	var s models.CSRFSession
	if err := c.Get(ctx, NamespaceCSRF, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// NewUserSession records that a browser is authenticated as userID.
func (c *SessionCache) NewUserSession(ctx context.Context, userID string, ttl time.Duration) (*models.UserSession, error) {
	id, err := common.MakeRandHexString(idBytes)
	if err != nil {
		return nil, err
	}
	s := &models.UserSession{ID: id, Validity: c.validity(NamespaceSession, ttl), UserID: userID}
	if err := c.put(ctx, NamespaceSession, id, s, s.Validity); err != nil {
		return nil, err
	}
	return s, nil
}

// UserSession loads a user session by id.
func (c *SessionCache) UserSession(ctx context.Context, id string) (*models.UserSession, error) {
	var s models.UserSession
	if err := c.Get(ctx, NamespaceSession, id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// CodeRequest holds what an authorization code is bound to.
type CodeRequest struct {
	UserID              string
	ClientID            string
	CodeChallenge       string
	CodeChallengeMethod string
	RedirectURI         string
}

// IssueCode stores a new single-use authorization code.
func (c *SessionCache) IssueCode(ctx context.Context, req CodeRequest, ttl time.Duration) (*models.AuthorizationCode, error) {
	code, err := common.MakeRandHexString(idBytes)
	if err != nil {
		return nil, err
	}
	ac := &models.AuthorizationCode{
		Code:                code,
		Validity:            c.validity(NamespaceCode, ttl),
		ClientID:            req.ClientID,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		RedirectURI:         req.RedirectURI,
		UserID:              req.UserID,
	}
	if err := c.put(ctx, NamespaceCode, code, ac, ac.Validity); err != nil {
		return nil, err
	}
	return ac, nil
}

// ConsumeCode removes and returns the code in one step. Concurrent callers
// racing on the same code see it at most once; the rest, like callers
// holding an expired code, get common.ErrorNotFound.
func (c *SessionCache) ConsumeCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	raw, err := c.store.GetDel(ctx, c.key(NamespaceCode, code))
	if err != nil {
		return nil, err
	}
	data, err := c.open(NamespaceCode, raw)
	if err != nil {
		return nil, err
	}
	var ac models.AuthorizationCode
	if err := json.Unmarshal(data, &ac); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", NamespaceCode, err)
	}
	return &ac, nil
}
