// Package tokens provides a PostgreSQL-backed repository for access tokens.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/dbx"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.Token) (*models.Token, error) {
	query := `
		INSERT INTO auth_tokens (user_id, hashed_token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, token.UserID, token.HashedToken, token.ExpiresAt.UTC()).Scan(&token.ID)
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	return token, nil
}

func (r *PostgresRepository) FindValid(ctx context.Context, hashed []byte, now time.Time) (*models.TokenLookup, error) {
	query := `
		SELECT t.id, t.user_id, t.hashed_token, t.expires_at, u.username, r.id, r.name
		FROM auth_tokens t
		JOIN auth_users u ON u.id = t.user_id
		JOIN auth_roles r ON r.id = u.role_id
		WHERE t.hashed_token = $1 AND t.expires_at > $2
	`
	l := &models.TokenLookup{}
	err := r.db.QueryRowContext(ctx, query, hashed, now.UTC()).Scan(
		&l.Token.ID, &l.Token.UserID, &l.Token.HashedToken, &l.Token.ExpiresAt,
		&l.UserName, &l.RoleID, &l.RoleName,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapError(err)
	}
	l.Token.ExpiresAt = l.Token.ExpiresAt.UTC()
	return l, nil
}

func (r *PostgresRepository) FindForUser(ctx context.Context, userID int64, hashed []byte) (*models.Token, error) {
	query := `
		SELECT id, user_id, hashed_token, expires_at
		FROM auth_tokens
		WHERE user_id = $1 AND hashed_token = $2
	`
	t := &models.Token{}
	err := r.db.QueryRowContext(ctx, query, userID, hashed).Scan(&t.ID, &t.UserID, &t.HashedToken, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, dbx.WrapError(err)
	}
	t.ExpiresAt = t.ExpiresAt.UTC()
	return t, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id); err != nil {
		return dbx.WrapError(err)
	}
	return nil
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, userID int64) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM auth_tokens WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(ctx, `DELETE FROM auth_tokens WHERE expires_at <= $1`, now.UTC())
}

func (r *PostgresRepository) deleteWhere(ctx context.Context, query string, arg any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, arg)
	if err != nil {
		return 0, dbx.WrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dbx.WrapError(err)
	}
	return n, nil
}
