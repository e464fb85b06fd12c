// Package users declares the durable user store and its PostgreSQL
// implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/hiresify/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills in its ID and CreatedAt. A taken
	// username yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	UpdatePassword(ctx context.Context, userID string, passwordHash string) error
	// Delete removes the user; the user's refresh tokens go with it.
	Delete(ctx context.Context, userID string) error
}
