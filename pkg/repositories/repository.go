package repositories

import (
	"context"

	"github.com/hollowfen/pasture/pkg/repositories/models"
)

type Repository interface {
	Close(ctx context.Context) error
	// CreateUser upserts a user row for a verified auth UID.
	CreateUser(ctx context.Context, uid string) (*models.User, error)
	// GetSave returns the user's save row, or ErrNotFound.
	GetSave(ctx context.Context, userID string) (*models.SaveRow, error)
	// GetSaveInfo returns save metadata without the blobs, or ErrNotFound.
	GetSaveInfo(ctx context.Context, userID string) (*models.SaveInfo, error)
	// UpsertSave writes the user's single save row.
	UpsertSave(ctx context.Context, row *models.SaveRow) error
	// DeleteSave removes the user's save row, or ErrNotFound.
	DeleteSave(ctx context.Context, userID string) error
}
