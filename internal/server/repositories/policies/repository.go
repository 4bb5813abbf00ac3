// Package policies reads the policy catalog. Policies are seeded by migration
// and never written at runtime.
package policies

import (
	"context"

	"github.com/trzyszczcms/authcore/internal/server/models"
)

type Repository interface {
	List(ctx context.Context) ([]models.Policy, error)
	GetByName(ctx context.Context, name string) (*models.Policy, error)
}
