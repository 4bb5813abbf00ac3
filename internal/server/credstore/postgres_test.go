package credstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/server/models"
	"github.com/trzyszczcms/authcore/internal/server/repositories/repomanager"
)

func newPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresStore(db, repomanager.NewPostgresRepositoryManager()), mock
}

func TestPostgresStore_InsertTokenCommits(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+auth_tokens`).
		WithArgs(int64(7), []byte("h"), t0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectCommit()

	tok := &models.Token{UserID: 7, HashedToken: []byte("h"), ExpiresAt: t0}
	require.NoError(t, s.InsertToken(context.Background(), tok))
	assert.Equal(t, int64(3), tok.ID)
}

func TestPostgresStore_InsertTokenCollisionRollsBack(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+auth_tokens`).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	err := s.InsertToken(context.Background(), &models.Token{UserID: 7, HashedToken: []byte("h"), ExpiresAt: t0})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestPostgresStore_BeginFails(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

	err := s.DeleteToken(context.Background(), 3)
	assert.ErrorContains(t, err, "begin tx: pool exhausted")
}

func TestPostgresStore_DeleteToken(t *testing.T) {
	s, mock := newPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM auth_tokens WHERE id = \$1$`).WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DeleteToken(context.Background(), 3))
}

func TestPostgresStore_Reads(t *testing.T) {
	s, mock := newPostgresStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`FROM\s+auth_tokens\s+t`).WithArgs([]byte("h"), t0).WillReturnError(sql.ErrNoRows)
	_, err := s.FindTokenByHash(ctx, []byte("h"), t0)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(`FROM\s+auth_roles\s+WHERE\s+id`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "factory_role"}).AddRow(int64(1), "Admin", true))
	name, err := s.GetRoleName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Admin", name)

	mock.ExpectQuery(`FROM\s+auth_roles\s+WHERE\s+id`).WithArgs(int64(2)).WillReturnError(sql.ErrNoRows)
	_, err = s.GetRoleName(ctx, 2)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(`FROM\s+auth_role_policy_assign`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("EditPage"))
	names, err := s.ListPolicyNamesForRole(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"EditPage"}, names)
}

func TestPostgresStore_DeleteRole(t *testing.T) {
	roleQ := `FROM\s+auth_roles\s+WHERE\s+id`
	roleCols := []string{"id", "name", "factory_role"}

	t.Run("factory role", func(t *testing.T) {
		s, mock := newPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(roleQ).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(roleCols).AddRow(int64(1), "Admin", true))
		mock.ExpectRollback()

		assert.ErrorIs(t, s.DeleteRole(context.Background(), 1), common.ErrFactoryRole)
	})

	t.Run("in use", func(t *testing.T) {
		s, mock := newPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(roleQ).WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows(roleCols).AddRow(int64(2), "Editor", false))
		mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM auth_users WHERE role_id = \$1$`).WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(4)))
		mock.ExpectRollback()

		assert.ErrorIs(t, s.DeleteRole(context.Background(), 2), common.ErrRoleInUse)
	})

	t.Run("deleted", func(t *testing.T) {
		s, mock := newPostgresStore(t)
		mock.ExpectBegin()
		mock.ExpectQuery(roleQ).WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows(roleCols).AddRow(int64(2), "Editor", false))
		mock.ExpectQuery(`^SELECT COUNT\(\*\) FROM auth_users WHERE role_id = \$1$`).WithArgs(int64(2)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(0)))
		mock.ExpectExec(`^DELETE FROM auth_roles WHERE id = \$1$`).WithArgs(int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, s.DeleteRole(context.Background(), 2))
	})
}

func TestPostgresStore_BulkDeletes(t *testing.T) {
	s, mock := newPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM auth_tokens WHERE user_id = \$1$`).WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`^DELETE FROM auth_tokens WHERE expires_at <= \$1$`).WithArgs(t0).
		WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectCommit()

	n, err := s.DeleteUserTokens(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.DeleteExpiredTokens(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestPostgresStore_CreateUserAndPassword(t *testing.T) {
	s, mock := newPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT\s+INTO\s+auth_users`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), t0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+auth_users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	u := &models.User{UserName: "alice", RoleID: 1}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.Equal(t, int64(5), u.ID)

	require.NoError(t, s.UpdatePassword(ctx, u.ID, models.PasswordCredentials{Hash: []byte("h"), Salt: []byte("s"), Parallelism: 1, Iterations: 1, MemoryCostKiB: 64}))
}

func TestPostgresStore_ReplaceCredentials(t *testing.T) {
	c := models.PasswordCredentials{Hash: []byte("h"), Salt: []byte("s"), Parallelism: 1, Iterations: 1, MemoryCostKiB: 64}

	t.Run("commits both writes", func(t *testing.T) {
		s, mock := newPostgresStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE\s+auth_users`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE\s+FROM\s+auth_tokens\s+WHERE\s+user_id`).
			WithArgs(int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 3))
		mock.ExpectCommit()

		n, err := s.ReplaceCredentials(context.Background(), 5, c)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("token delete failure rolls back the password", func(t *testing.T) {
		s, mock := newPostgresStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE\s+auth_users`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`DELETE\s+FROM\s+auth_tokens\s+WHERE\s+user_id`).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		n, err := s.ReplaceCredentials(context.Background(), 5, c)
		require.Error(t, err)
		assert.Zero(t, n)
	})

	t.Run("unknown user deletes nothing", func(t *testing.T) {
		s, mock := newPostgresStore(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE\s+auth_users`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := s.ReplaceCredentials(context.Background(), 5, c)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})
}
