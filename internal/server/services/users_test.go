package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/cryptox"
	"github.com/trzyszczcms/authcore/internal/logging"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

func TestCreateUser_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		username    string
		description string
		password    string
		role        string
		want        error
	}{
		{"empty username", "", "", "pw", models.AdminRoleName, common.ErrorInvalidInput},
		{"space in username", "al ice", "", "pw", models.AdminRoleName, common.ErrorInvalidInput},
		{"username too long", strings.Repeat("a", 41), "", "pw", models.AdminRoleName, common.ErrorInvalidInput},
		{"description too long", "alice", strings.Repeat("d", 251), "pw", models.AdminRoleName, common.ErrorInvalidInput},
		{"empty password", "alice", "", "", models.AdminRoleName, common.ErrorInvalidInput},
		{"unknown role", "alice", "", "pw", "Ghost", common.ErrorNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.users.CreateUser(ctx, tt.username, tt.description, tt.password, tt.role)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateUser_StoresHashWithParams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.CreateUser(ctx, "alice.b-2_x", strings.Repeat("d", 250), "pw", models.AdminRoleName)
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Len(t, u.PasswordHash, cryptox.HashLength)
	assert.Len(t, u.PasswordSalt, cryptox.SaltLength)
	assert.Equal(t, cheap.Parallelism, u.Parallelism)
	assert.Equal(t, cheap.Iterations, u.Iterations)
	assert.Equal(t, cheap.MemoryKiB, u.MemoryCostKiB)

	_, err = f.users.CreateUser(ctx, "alice.b-2_x", "", "pw", models.AdminRoleName)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice", "old-pw", models.AdminRoleName)

	a, err := f.auth.Login(ctx, "alice", "old-pw", false)
	require.NoError(t, err)
	b, err := f.auth.Login(ctx, "alice", "old-pw", true)
	require.NoError(t, err)

	n, err := f.users.ChangePassword(ctx, "alice", "new-pw")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{a.AccessToken, b.AccessToken} {
		s, err := f.auth.ValidateToken(ctx, tok)
		require.NoError(t, err)
		assert.Nil(t, s, "tokens issued before the change are revoked")
	}

	s, err := f.auth.Login(ctx, "alice", "old-pw", false)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = f.auth.Login(ctx, "alice", "new-pw", false)
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = f.users.ChangePassword(ctx, "ghost", "pw")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = f.users.ChangePassword(ctx, "alice", "")
	assert.ErrorIs(t, err, common.ErrorInvalidInput)
}

func TestChangePassword_StoreFailureKeepsOldState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice", "old-pw", models.AdminRoleName)

	before, err := f.auth.Login(ctx, "alice", "old-pw", false)
	require.NoError(t, err)
	require.NotNil(t, before)

	f.store.replaceErr = errors.New("connection reset")
	_, err = f.users.ChangePassword(ctx, "alice", "new-pw")
	require.ErrorIs(t, err, common.ErrPersistence)
	f.store.replaceErr = nil

	s, err := f.auth.ValidateToken(ctx, before.AccessToken)
	require.NoError(t, err)
	assert.NotNil(t, s, "existing token stays valid when nothing was written")

	s, err = f.auth.Login(ctx, "alice", "old-pw", false)
	require.NoError(t, err)
	assert.NotNil(t, s, "old password still works")

	s, err = f.auth.Login(ctx, "alice", "new-pw", false)
	require.NoError(t, err)
	assert.Nil(t, s, "new password was not stored")
}

// Raising the default cost keeps old hashes usable and upgrades them on the
// next password change.
func TestChangePassword_UpgradesCostParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice", "pw", models.AdminRoleName)

	stronger := cryptox.Params{Parallelism: 2, Iterations: 2, MemoryKiB: 128}
	upgraded := NewUserService(f.store, Deps{Hasher: newHasher(t, stronger), Now: f.clock.Now})

	s, err := f.auth.Login(ctx, "alice", "pw", false)
	require.NoError(t, err)
	require.NotNil(t, s, "old parameters still verify")

	_, err = upgraded.ChangePassword(ctx, "alice", "pw")
	require.NoError(t, err)

	u, err := f.store.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, stronger.Parallelism, u.Parallelism)
	assert.Equal(t, stronger.Iterations, u.Iterations)
	assert.Equal(t, stronger.MemoryKiB, u.MemoryCostKiB)

	s, err = f.auth.Login(ctx, "alice", "pw", false)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestRolesAndGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.users.CreateRole(ctx, "Editor")
	require.NoError(t, err)
	_, err = f.users.CreateRole(ctx, "Editor")
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	_, err = f.users.CreateRole(ctx, "bad name!")
	assert.ErrorIs(t, err, common.ErrorInvalidInput)

	require.NoError(t, f.users.GrantPolicy(ctx, "Editor", "EditPage"))
	require.NoError(t, f.users.GrantPolicy(ctx, "Editor", "CreatePage"))
	require.NoError(t, f.users.GrantPolicy(ctx, "Editor", "EditPage"))
	assert.ErrorIs(t, f.users.GrantPolicy(ctx, "Editor", "FlyToMoon"), common.ErrorNotFound)
	assert.ErrorIs(t, f.users.GrantPolicy(ctx, "Ghost", "EditPage"), common.ErrorNotFound)

	f.addUser(t, "carol", "pw", "Editor")
	s, err := f.auth.Login(ctx, "carol", "pw", false)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "Editor", s.RoleName)
	assert.Equal(t, []string{"CreatePage", "EditPage"}, s.Policies)
	assert.False(t, s.HasPolicy("DeletePage"))

	assert.ErrorIs(t, f.users.DeleteRole(ctx, "Editor"), common.ErrRoleInUse)
	assert.ErrorIs(t, f.users.DeleteRole(ctx, models.AdminRoleName), common.ErrFactoryRole)

	_, err = f.users.CreateRole(ctx, "Empty")
	require.NoError(t, err)
	require.NoError(t, f.users.DeleteRole(ctx, "Empty"))
	assert.ErrorIs(t, f.users.DeleteRole(ctx, "Empty"), common.ErrorNotFound)
}

func TestListPolicies(t *testing.T) {
	f := newFixture(t)

	ps, err := f.users.ListPolicies(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(ps))
	for _, p := range ps {
		names = append(names, p.Name)
	}
	assert.Equal(t, sortedCatalog(), names)
}

func TestSeedAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	password, err := f.users.SeedAdmin(ctx)
	require.NoError(t, err)
	assert.Len(t, password, 32)

	s, err := f.auth.Login(ctx, AdminUserName, password, false)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, models.AdminRoleName, s.RoleName)
	assert.True(t, s.HasPolicy("PromoteAnyUser"))

	again, err := f.users.SeedAdmin(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "a populated store is left alone")

	f.store.countErr = errors.New("db down")
	_, err = f.users.SeedAdmin(ctx)
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestSeedAdmin_DoesNotLogPassword(t *testing.T) {
	f := newFixture(t)
	var buf bytes.Buffer
	us := NewUserService(f.store, Deps{Hasher: f.hasher, Logger: logging.NewJSONLogger(&buf, "debug")})

	password, err := us.SeedAdmin(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, password)

	assert.Contains(t, buf.String(), "seeded administrator account")
	assert.NotContains(t, buf.String(), password)
}

func TestPurgeExpiredTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser(t, "alice", "pw", models.AdminRoleName)

	short, err := f.auth.Login(ctx, "alice", "pw", false)
	require.NoError(t, err)
	long, err := f.auth.Login(ctx, "alice", "pw", true)
	require.NoError(t, err)

	f.clock.Set(short.ExpiresAt)
	n, err := f.users.PurgeExpiredTokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.TokensPurgedTotal))

	s, err := f.auth.ValidateToken(ctx, long.AccessToken)
	require.NoError(t, err)
	assert.NotNil(t, s)

	f.store.purgeErr = errors.New("db down")
	_, err = f.users.PurgeExpiredTokens(ctx)
	assert.ErrorIs(t, err, common.ErrPersistence)
}

func TestRunTokenJanitor(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	u := f.addUser(t, "alice", "pw", models.AdminRoleName)

	_, err := f.auth.Login(context.Background(), "alice", "pw", false)
	require.NoError(t, err)
	f.clock.Set(t0.Add(shortTerm))

	done := make(chan struct{})
	go func() {
		f.users.RunTokenJanitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.metrics.TokensPurgedTotal) == 1
	}, time.Second, 5*time.Millisecond)

	n, err := f.store.DeleteUserTokens(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestStoreError(t *testing.T) {
	for _, sentinel := range []error{
		common.ErrorNotFound, common.ErrAlreadyExists, common.ErrReferenceNotFound,
		common.ErrFactoryRole, common.ErrRoleInUse,
	} {
		err := storeError("op", sentinel)
		assert.ErrorIs(t, err, sentinel)
		assert.NotErrorIs(t, err, common.ErrPersistence)
	}

	err := storeError("op", context.DeadlineExceeded)
	assert.ErrorIs(t, err, common.ErrPersistence)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
