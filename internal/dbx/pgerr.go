package dbx

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/trzyszczcms/authcore/internal/common"
)

// Postgres SQLSTATE codes the repositories translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// WrapError wraps a driver error as "db error: ..." and, for constraint
// violations, additionally marks it with the matching common sentinel.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("db error: %w: %w", common.ErrAlreadyExists, err)
		case pgForeignKeyViolation:
			return fmt.Errorf("db error: %w: %w", common.ErrReferenceNotFound, err)
		}
	}
	return fmt.Errorf("db error: %w", err)
}
