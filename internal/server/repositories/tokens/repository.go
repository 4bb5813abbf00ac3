// Package tokens declares the server-side repository contract for stored
// access tokens. Tokens are addressed by the digest of their plaintext.
package tokens

import (
	"context"
	"time"

	"github.com/trzyszczcms/authcore/internal/server/models"
)

// Repository defines operations for issuing, resolving and revoking access tokens.
type Repository interface {
	// Create stores a token row. A digest that already exists fails with
	// common.ErrAlreadyExists; existing rows are never overwritten.
	Create(ctx context.Context, token *models.Token) (*models.Token, error)

	// FindValid resolves a digest to its token, owner and role in one query.
	// Tokens with expires_at <= now are treated as absent (common.ErrorNotFound).
	FindValid(ctx context.Context, hashed []byte, now time.Time) (*models.TokenLookup, error)

	// FindForUser returns the token with the given digest only if it belongs to userID.
	FindForUser(ctx context.Context, userID int64, hashed []byte) (*models.Token, error)

	// Delete removes a token by id. Deleting a missing row is not an error.
	Delete(ctx context.Context, id int64) error

	DeleteForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
