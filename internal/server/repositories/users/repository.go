// Package users declares the repository contract for auth_users rows.
package users

import (
	"context"

	"github.com/trzyszczcms/authcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	Count(ctx context.Context) (int64, error)
	CountByRole(ctx context.Context, roleID int64) (int64, error)
	// UpdateCredentials replaces hash, salt and cost parameters in one statement.
	UpdateCredentials(ctx context.Context, userID int64, c models.PasswordCredentials) error
}
