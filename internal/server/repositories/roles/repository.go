// Package roles declares the repository contract for roles and their policy
// assignments.
package roles

import (
	"context"

	"github.com/trzyszczcms/authcore/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, role *models.Role) (*models.Role, error)
	GetByID(ctx context.Context, id int64) (*models.Role, error)
	GetByName(ctx context.Context, name string) (*models.Role, error)
	Delete(ctx context.Context, id int64) error
	// AssignPolicy is idempotent: assigning an existing pair is not an error.
	AssignPolicy(ctx context.Context, roleID, policyID int64) error
	ListPolicyNames(ctx context.Context, roleID int64) ([]string, error)
}
