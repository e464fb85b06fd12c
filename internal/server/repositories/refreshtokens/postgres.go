// Package refreshtokens provides a PostgreSQL-backed ledger of refresh tokens.
package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/common"
	"github.com/dmitrijs2005/hiresify/internal/dbx"
	"github.com/dmitrijs2005/hiresify/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the record only if its user still exists. The existence
// check and the insert are one statement, so a user deleted concurrently
// yields common.ErrorNotFound instead of an orphan row.
func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (uid, token_hash, user_uid, issued_at, expire_at, device, ip, platform)
		SELECT $1::uuid, $2::text, u.uid, $4::timestamptz, $5::timestamptz, $6::text, $7::text, $8::text
		FROM users u
		WHERE u.uid = $3
		RETURNING uid
	`
	err := r.db.QueryRowContext(ctx, query,
		token.ID, token.TokenHash, token.UserID, token.IssuedAt, token.ExpireAt,
		nullString(token.Device), nullString(token.IP), nullString(token.Platform),
	).Scan(&token.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsForeignKeyViolation(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return token, nil
}

const selectColumns = `uid, token_hash, user_uid, issued_at, expire_at, revoked, device, ip, platform`

// Find returns the record for tokenHash.
// If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	token, err := scanToken(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM refresh_tokens
		WHERE user_uid = $1
		ORDER BY issued_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []*models.RefreshToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tokens, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string) (bool, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token_hash = $1
	`
	n, err := r.exec(ctx, query, tokenHash)
	return n > 0, err
}

func (r *PostgresRepository) RevokeAll(ctx context.Context, userID string) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_uid = $1 AND NOT revoked
	`
	return r.exec(ctx, query, userID)
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context, retentionDays int, now time.Time) (int64, error) {
	query := `
		DELETE FROM refresh_tokens
		WHERE revoked OR expire_at < $1
	`
	return r.exec(ctx, query, now.AddDate(0, 0, -retentionDays))
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanToken(s scanner) (*models.RefreshToken, error) {
	var (
		t                    models.RefreshToken
		device, ip, platform sql.NullString
	)
	if err := s.Scan(&t.ID, &t.TokenHash, &t.UserID, &t.IssuedAt, &t.ExpireAt, &t.Revoked, &device, &ip, &platform); err != nil {
		return nil, err
	}
	t.Device = stringPtr(device)
	t.IP = stringPtr(ip)
	t.Platform = stringPtr(platform)
	return &t, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
