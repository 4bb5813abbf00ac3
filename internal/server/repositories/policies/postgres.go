package policies

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

func (r *PostgresRepository) List(ctx context.Context) ([]models.Policy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM auth_policies ORDER BY name`)
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	defer rows.Close()

	var out []models.Policy
	for rows.Next() {
		var p models.Policy
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, dbx.WrapError(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.WrapError(err)
	}
	return out, nil
}

func (r *PostgresRepository) GetByName(ctx context.Context, name string) (*models.Policy, error) {
	p := &models.Policy{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM auth_policies WHERE name = $1`, name).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapError(err)
	}
	return p, nil
}
