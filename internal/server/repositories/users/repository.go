package users

import (
	"context"

	"github.com/dmitrijs2005/bizledger/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// LockCurrentRefreshToken row-locks the user and returns the id of its
	// current refresh token ("" when none).
	LockCurrentRefreshToken(ctx context.Context, userID string) (string, error)
	// SwapCurrentRefreshToken sets the current refresh token to newID only if
	// it still equals oldID ("" meaning none) and reports whether it did.
	SwapCurrentRefreshToken(ctx context.Context, userID, oldID, newID string) (bool, error)
	ClearCurrentRefreshToken(ctx context.Context, userID string) error
}
