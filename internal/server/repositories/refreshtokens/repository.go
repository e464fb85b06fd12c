// Package refreshtokens declares the refresh-token ledger: the durable,
// revocable record of every refresh token issued to a user.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/hiresify/internal/server/models"
)

// Repository is keyed by the token fingerprint (models.RefreshToken.TokenHash),
// never by the bearer value itself.
type Repository interface {
	// Create persists token. It returns common.ErrorNotFound when
	// token.UserID does not name an existing user at insert time.
	Create(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)

	// Find returns the record for tokenHash or common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// FindByUser lists every record of userID, newest first.
	FindByUser(ctx context.Context, userID string) ([]*models.RefreshToken, error)

	// Revoke marks the record revoked. It is idempotent and reports whether
	// a record matched.
	Revoke(ctx context.Context, tokenHash string) (bool, error)

	// RevokeAll revokes every live record of userID and returns how many
	// were flipped.
	RevokeAll(ctx context.Context, userID string) (int64, error)

	// PurgeExpired deletes revoked records and records that expired more
	// than retentionDays before now.
	PurgeExpired(ctx context.Context, retentionDays int, now time.Time) (int64, error)
}
