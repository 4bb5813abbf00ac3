package roles

import (
	"context"
	"database/sql"
	"errors"

	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/dbx"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, role *models.Role) (*models.Role, error) {
	query := `
		INSERT INTO auth_roles (name, factory_role)
		VALUES ($1, $2)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, role.Name, role.FactoryRole).Scan(&role.ID); err != nil {
		return nil, dbx.WrapError(err)
	}
	return role, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	query := `
		SELECT id, name, factory_role
		FROM auth_roles
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Role, error) {
	query := `
		SELECT id, name, factory_role
		FROM auth_roles
		WHERE name = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, name))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Role, error) {
	role := &models.Role{}
	if err := row.Scan(&role.ID, &role.Name, &role.FactoryRole); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapError(err)
	}
	return role, nil
}

// Delete removes a role and, by cascade, its policy assignments.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_roles WHERE id = $1`, id)
	if err != nil {
		return dbx.WrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbx.WrapError(err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) AssignPolicy(ctx context.Context, roleID, policyID int64) error {
	query := `
		INSERT INTO auth_role_policy_assign (role_id, policy_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, roleID, policyID); err != nil {
		return dbx.WrapError(err)
	}
	return nil
}

// ListPolicyNames returns the names of the policies assigned to roleID in
// ascending order. A role without policies yields an empty slice.
func (r *PostgresRepository) ListPolicyNames(ctx context.Context, roleID int64) ([]string, error) {
	query := `
		SELECT p.name
		FROM auth_role_policy_assign a
		JOIN auth_policies p ON p.id = a.policy_id
		WHERE a.role_id = $1
		ORDER BY p.name
	`
	rows, err := r.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dbx.WrapError(err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.WrapError(err)
	}
	return names, nil
}
