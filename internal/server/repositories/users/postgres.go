package users

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO auth_users (username, description, password_hash, password_salt,
		     argon2_parallelism, argon2_iterations, argon2_memory_kib, role_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.UserName, user.Description, user.PasswordHash, user.PasswordSalt,
		int16(user.Parallelism), int64(user.Iterations), int64(user.MemoryCostKiB), user.RoleID,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, dbx.WrapError(err)
	}

	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

func (r *PostgresRepository) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	query :=
		`SELECT id, username, description, password_hash, password_salt,
		     argon2_parallelism, argon2_iterations, argon2_memory_kib, role_id, created_at
		 FROM auth_users
		 WHERE username = $1
		 `

	var (
		user        models.User
		parallelism int16
		iterations  int64
		memory      int64
	)
	err := r.db.QueryRowContext(ctx, query, userName).Scan(
		&user.ID, &user.UserName, &user.Description, &user.PasswordHash, &user.PasswordSalt,
		&parallelism, &iterations, &memory, &user.RoleID, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapError(err)
	}

	// Out-of-range values become 0 and are rejected by the verifier.
	user.Parallelism = narrow[uint8](parallelism, 1<<8-1)
	user.Iterations = narrow[uint32](iterations, 1<<32-1)
	user.MemoryCostKiB = narrow[uint32](memory, 1<<32-1)
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users`).Scan(&n); err != nil {
		return 0, dbx.WrapError(err)
	}
	return n, nil
}

func (r *PostgresRepository) CountByRole(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_users WHERE role_id = $1`, roleID).Scan(&n)
	if err != nil {
		return 0, dbx.WrapError(err)
	}
	return n, nil
}

func (r *PostgresRepository) UpdateCredentials(ctx context.Context, userID int64, c models.PasswordCredentials) error {
	query :=
		`UPDATE auth_users
		 SET password_hash = $2, password_salt = $3,
		     argon2_parallelism = $4, argon2_iterations = $5, argon2_memory_kib = $6
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, c.Hash, c.Salt,
		int16(c.Parallelism), int64(c.Iterations), int64(c.MemoryCostKiB))
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

func narrow[T uint8 | uint32, S int16 | int64](v S, limit int64) T {
	if int64(v) < 0 || int64(v) > limit {
		return 0
	}
	return T(v)
}
