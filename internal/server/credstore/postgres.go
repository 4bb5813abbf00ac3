package credstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/dbx"
	"github.com/trzyszczcms/authcore/internal/server/models"
	"github.com/trzyszczcms/authcore/internal/server/repositories/repomanager"
)

// PostgresStore implements Store and Admin over the repositories. Reads go
// to the pool; every write runs in its own read-committed transaction.
type PostgresStore struct {
	db   *sql.DB
	repo repomanager.RepositoryManager
}

func NewPostgresStore(db *sql.DB, repo repomanager.RepositoryManager) *PostgresStore {
	return &PostgresStore{db: db, repo: repo}
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return dbx.WithTx(ctx, s.db, dbx.ReadCommitted, fn)
}

func (s *PostgresStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.repo.Users(s.db).GetUserByLogin(ctx, username)
}

func (s *PostgresStore) FindTokenByHash(ctx context.Context, hash []byte, now time.Time) (*models.TokenLookup, error) {
	return s.repo.Tokens(s.db).FindValid(ctx, hash, now)
}

func (s *PostgresStore) FindUserToken(ctx context.Context, userID int64, hash []byte) (*models.Token, error) {
	return s.repo.Tokens(s.db).FindForUser(ctx, userID, hash)
}

func (s *PostgresStore) InsertToken(ctx context.Context, t *models.Token) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repo.Tokens(tx).Create(ctx, t)
		return err
	})
}

func (s *PostgresStore) DeleteToken(ctx context.Context, tokenID int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repo.Tokens(tx).Delete(ctx, tokenID)
	})
}

func (s *PostgresStore) ListPolicyNamesForRole(ctx context.Context, roleID int64) ([]string, error) {
	return s.repo.Roles(s.db).ListPolicyNames(ctx, roleID)
}

func (s *PostgresStore) GetRoleName(ctx context.Context, roleID int64) (string, error) {
	r, err := s.repo.Roles(s.db).GetByID(ctx, roleID)
	if err != nil {
		return "", err
	}
	return r.Name, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repo.Users(tx).Create(ctx, u)
		return err
	})
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	return s.repo.Users(s.db).Count(ctx)
}

func (s *PostgresStore) UpdatePassword(ctx context.Context, userID int64, c models.PasswordCredentials) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repo.Users(tx).UpdateCredentials(ctx, userID, c)
	})
}

func (s *PostgresStore) ReplaceCredentials(ctx context.Context, userID int64, c models.PasswordCredentials) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repo.Users(tx).UpdateCredentials(ctx, userID, c); err != nil {
			return err
		}
		var err error
		n, err = s.repo.Tokens(tx).DeleteForUser(ctx, userID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) CreateRole(ctx context.Context, r *models.Role) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repo.Roles(tx).Create(ctx, r)
		return err
	})
}

func (s *PostgresStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	return s.repo.Roles(s.db).GetByName(ctx, name)
}

func (s *PostgresStore) DeleteRole(ctx context.Context, roleID int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		r, err := s.repo.Roles(tx).GetByID(ctx, roleID)
		if err != nil {
			return err
		}
		if r.FactoryRole {
			return common.ErrFactoryRole
		}
		n, err := s.repo.Users(tx).CountByRole(ctx, roleID)
		if err != nil {
			return err
		}
		if n > 0 {
			return common.ErrRoleInUse
		}
		return s.repo.Roles(tx).Delete(ctx, roleID)
	})
}

func (s *PostgresStore) ListPolicies(ctx context.Context) ([]models.Policy, error) {
	return s.repo.Policies(s.db).List(ctx)
}

func (s *PostgresStore) FindPolicyByName(ctx context.Context, name string) (*models.Policy, error) {
	return s.repo.Policies(s.db).GetByName(ctx, name)
}

func (s *PostgresStore) AssignPolicy(ctx context.Context, roleID, policyID int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repo.Roles(tx).AssignPolicy(ctx, roleID, policyID)
	})
}

func (s *PostgresStore) DeleteUserTokens(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repo.Tokens(tx).DeleteForUser(ctx, userID)
		return err
	})
	return n, err
}

func (s *PostgresStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repo.Tokens(tx).DeleteExpired(ctx, now)
		return err
	})
	return n, err
}
