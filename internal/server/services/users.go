package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/dbx"
	"github.com/dmitrijs2005/hiresify/internal/logging"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
	"github.com/dmitrijs2005/hiresify/internal/server/password"
	"github.com/dmitrijs2005/hiresify/internal/server/repositories/repomanager"
)

// UserService holds account administration used by the operator CLI and
// the background ledger purge.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      password.Hasher
	logger      logging.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher password.Hasher, logger logging.Logger, opts ...Option) *UserService {
	o := buildOptions(opts)
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		logger:      logger.With("module", "users"),
		tracer:      o.tracer,
		now:         o.now,
	}
}

// CreateUser adds an account without going through the browser flow.
func (s *UserService) CreateUser(ctx context.Context, username, plain string) (_ *models.User, err error) {
	ctx, span := s.tracer.Start(ctx, "users.create")
	defer func() { finishSpan(span, err) }()

	if !validAccount(username, plain) {
		return nil, common.ErrInvalidRequest
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return nil, err
	}
	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{UserName: username, PasswordHash: hash})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrUsernameConflict
		}
		return nil, common.Upstream(err)
	}
	s.logger.Info(ctx, "user created", "user_uid", user.ID)
	return user, nil
}

// GetUser looks a user up by username.
func (s *UserService) GetUser(ctx context.Context, username string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, username)
	if err != nil {
		return nil, mapStoreErr(err, common.ErrUserNotFound)
	}
	return user, nil
}

// ChangePassword replaces the password of username and revokes every refresh
// token the user holds, in one transaction. It returns the number of tokens
// revoked.
func (s *UserService) ChangePassword(ctx context.Context, username, plain string) (_ int64, err error) {
	ctx, span := s.tracer.Start(ctx, "users.change_password")
	defer func() { finishSpan(span, err) }()

	if plain == "" || tooLong(bounded{plain, common.MaxPasswordLength}) {
		return 0, common.ErrInvalidRequest
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return 0, err
	}

	var revoked int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).GetUserByLogin(ctx, username)
		if err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		revoked, err = s.repomanager.RefreshTokens(tx).RevokeAll(ctx, user.ID)
		return err
	})
	if err != nil {
		return 0, mapStoreErr(err, common.ErrUserNotFound)
	}
	s.logger.Info(ctx, "password changed", "username", username, "revoked", revoked)
	return revoked, nil
}

// DeleteUser removes username; the ledger cascades.
func (s *UserService) DeleteUser(ctx context.Context, username string) (err error) {
	ctx, span := s.tracer.Start(ctx, "users.delete")
	defer func() { finishSpan(span, err) }()

	user, err := s.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if err := s.repomanager.Users(s.db).Delete(ctx, user.ID); err != nil {
		return mapStoreErr(err, common.ErrUserNotFound)
	}
	s.logger.Info(ctx, "user deleted", "user_uid", user.ID)
	return nil
}

// ListTokens returns the ledger records of username, newest first.
func (s *UserService) ListTokens(ctx context.Context, username string) ([]*models.RefreshToken, error) {
	user, err := s.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	tokens, err := s.repomanager.RefreshTokens(s.db).FindByUser(ctx, user.ID)
	if err != nil {
		return nil, common.Upstream(err)
	}
	return tokens, nil
}

// RevokeAll signs username out of every client.
func (s *UserService) RevokeAll(ctx context.Context, username string) (_ int64, err error) {
	ctx, span := s.tracer.Start(ctx, "users.revoke_all")
	defer func() { finishSpan(span, err) }()

	user, err := s.GetUser(ctx, username)
	if err != nil {
		return 0, err
	}
	n, err := s.repomanager.RefreshTokens(s.db).RevokeAll(ctx, user.ID)
	if err != nil {
		return 0, common.Upstream(err)
	}
	s.logger.Info(ctx, "refresh tokens revoked", "user_uid", user.ID, "count", n)
	return n, nil
}

// PurgeExpired drops revoked ledger records and those expired longer than
// retentionDays ago.
func (s *UserService) PurgeExpired(ctx context.Context, retentionDays int) (_ int64, err error) {
	ctx, span := s.tracer.Start(ctx, "users.purge_expired", trace.WithAttributes(
		attribute.Int("retention_days", retentionDays),
	))
	defer func() { finishSpan(span, err) }()

	if retentionDays < 0 {
		return 0, common.ErrInvalidRequest
	}
	n, err := s.repomanager.RefreshTokens(s.db).PurgeExpired(ctx, retentionDays, s.now())
	if err != nil {
		return 0, common.Upstream(err)
	}
	if n > 0 {
		s.logger.Info(ctx, "refresh ledger purged", "count", n)
	}
	return n, nil
}
