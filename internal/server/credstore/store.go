// Package credstore is the persistence boundary of the auth core. Store is
// what authentication needs on the hot path; Admin is the provisioning
// surface used at startup and by the operator CLI.
//
// Absent rows are reported as common.ErrorNotFound. Constraint violations
// surface as common.ErrAlreadyExists or common.ErrReferenceNotFound. Any other
// error is an infrastructure failure.
package credstore

import (
	"context"
	"time"

	"github.com/trzyszczcms/authcore/internal/server/models"
)

type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	// FindTokenByHash returns the token with the given digest, joined with its
	// owner and role, if it expires strictly after now.
	FindTokenByHash(ctx context.Context, hash []byte, now time.Time) (*models.TokenLookup, error)
	// FindUserToken returns the token with the given digest owned by userID,
	// regardless of expiry.
	FindUserToken(ctx context.Context, userID int64, hash []byte) (*models.Token, error)
	// InsertToken stores t in its own transaction and sets t.ID.
	InsertToken(ctx context.Context, t *models.Token) error
	// DeleteToken removes a token in its own transaction. A missing row is not an error.
	DeleteToken(ctx context.Context, tokenID int64) error
	ListPolicyNamesForRole(ctx context.Context, roleID int64) ([]string, error)
	GetRoleName(ctx context.Context, roleID int64) (string, error)
}

type Admin interface {
	// CreateUser stores u and sets u.ID and u.CreatedAt.
	CreateUser(ctx context.Context, u *models.User) error
	CountUsers(ctx context.Context) (int64, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	// UpdatePassword replaces hash, salt and cost parameters atomically.
	UpdatePassword(ctx context.Context, userID int64, c models.PasswordCredentials) error
	// ReplaceCredentials updates the password and deletes every token of the
	// user in one unit; on error neither change is kept. It returns the
	// number of deleted tokens.
	ReplaceCredentials(ctx context.Context, userID int64, c models.PasswordCredentials) (int64, error)

	CreateRole(ctx context.Context, r *models.Role) error
	FindRoleByName(ctx context.Context, name string) (*models.Role, error)
	// DeleteRole refuses factory roles (common.ErrFactoryRole) and roles that
	// still have users (common.ErrRoleInUse).
	DeleteRole(ctx context.Context, roleID int64) error

	ListPolicies(ctx context.Context) ([]models.Policy, error)
	FindPolicyByName(ctx context.Context, name string) (*models.Policy, error)
	AssignPolicy(ctx context.Context, roleID, policyID int64) error

	DeleteUserTokens(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Admin = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Admin = (*PostgresStore)(nil)
)
