package services

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/dbx"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/users"
)

// -------- test fakes --------

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeUsersRepo struct {
	users.Repository
	mu     sync.Mutex
	byName map[string]*models.User
	seq    int
	err    error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byName: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.byName[u.UserName]; ok {
		return nil, common.ErrorAlreadyExists
	}
	f.seq++
	stored := *u
	stored.ID = "user-" + strconv.Itoa(f.seq)
	stored.CreatedAt = time.Now()
	f.byName[u.UserName] = &stored
	out := stored
	return &out, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.byName[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *u
	return &out, nil
}

func (f *fakeUsersRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byName {
		if u.ID == id {
			u.PasswordHash = hash
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeUsersRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, u := range f.byName {
		if u.ID == id {
			delete(f.byName, name)
			return nil
		}
	}
	return common.ErrorNotFound
}

func (f *fakeUsersRepo) exists(id string) bool {
	_, err := f.GetUserByID(context.Background(), id)
	return err == nil
}

type fakeLedger struct {
	refreshtokens.Repository
	users *fakeUsersRepo

	mu        sync.Mutex
	byHash    map[string]*models.RefreshToken
	createErr error
	findErr   error
	purged    time.Time
}

func newFakeLedger(u *fakeUsersRepo) *fakeLedger {
	return &fakeLedger{users: u, byHash: map[string]*models.RefreshToken{}}
}

func (f *fakeLedger) Create(ctx context.Context, t *models.RefreshToken) (*models.RefreshToken, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if !f.users.exists(t.UserID) {
		return nil, common.ErrorNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *t
	f.byHash[t.TokenHash] = &stored
	return t, nil
}

func (f *fakeLedger) Find(ctx context.Context, hash string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[hash]
	if !ok {
		return nil, common.ErrorNotFound
	}
	out := *t
	return &out, nil
}

func (f *fakeLedger) FindByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RefreshToken
	for _, t := range f.byHash {
		if t.UserID == userID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (f *fakeLedger) Revoke(ctx context.Context, hash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[hash]
	if !ok {
		return false, nil
	}
	t.Revoked = true
	return true, nil
}

func (f *fakeLedger) RevokeAll(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, t := range f.byHash {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

func (f *fakeLedger) PurgeExpired(ctx context.Context, days int, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged = now
	cutoff := now.AddDate(0, 0, -days)
	var n int64
	for h, t := range f.byHash {
		if t.Revoked || t.ExpireAt.Before(cutoff) {
			delete(f.byHash, h)
			n++
		}
	}
	return n, nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	u *fakeUsersRepo
	r *fakeLedger
}

func newFakeRepoManager() *fakeRepoManager {
	u := newFakeUsersRepo()
	return &fakeRepoManager{u: u, r: newFakeLedger(u)}
}

func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.r }

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}
