// Package refreshtokens declares the server-side repository contract for
// refresh token records.
package refreshtokens

import (
	"context"

	"github.com/dmitrijs2005/bizledger/internal/server/models"
)

// Repository stores issued refresh tokens by id. Only token digests are kept.
type Repository interface {
	// Create stores a new refresh token record.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find looks up a record by id and returns common.ErrorNotFound when absent.
	Find(ctx context.Context, id string) (*models.RefreshToken, error)

	// DeleteAllForUser removes every record of the user and returns how many
	// were removed. Deleting nothing is not an error.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}
