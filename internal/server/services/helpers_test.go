package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/trzyszczcms/authcore/internal/cryptox"
	"github.com/trzyszczcms/authcore/internal/server/config"
	"github.com/trzyszczcms/authcore/internal/server/credstore"
	"github.com/trzyszczcms/authcore/internal/server/metrics"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

var (
	t0        = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	cheap     = cryptox.Params{Parallelism: 1, Iterations: 1, MemoryKiB: 64}
	shortTerm = 12 * time.Hour
	longTerm  = 30 * 24 * time.Hour
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.ShortTermTokenValidity = shortTerm
	cfg.LongTermTokenValidity = longTerm
	return cfg
}

// countingHasher counts Verify calls so tests can compare the work done on
// different rejection paths.
type countingHasher struct {
	*cryptox.PasswordHasher
	verifies atomic.Int64
}

func (h *countingHasher) Verify(hash, salt []byte, plaintext string, p cryptox.Params) (bool, error) {
	h.verifies.Add(1)
	return h.PasswordHasher.Verify(hash, salt, plaintext, p)
}

func newHasher(t *testing.T, p cryptox.Params) *countingHasher {
	t.Helper()
	h, err := cryptox.NewPasswordHasher(p)
	require.NoError(t, err)
	return &countingHasher{PasswordHasher: h}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// faultyStore fails selected methods of an otherwise working MemoryStore.
type faultyStore struct {
	*credstore.MemoryStore

	findUserErr    error
	findTokenErr   error
	findUserTokErr error
	insertErr      error
	deleteErr      error
	policiesErr    error
	roleNameErr    error
	countErr       error
	purgeErr       error
	replaceErr     error

	calls atomic.Int64
}

func (f *faultyStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	f.calls.Add(1)
	if f.findUserErr != nil {
		return nil, f.findUserErr
	}
	return f.MemoryStore.FindUserByUsername(ctx, username)
}

func (f *faultyStore) FindTokenByHash(ctx context.Context, hash []byte, now time.Time) (*models.TokenLookup, error) {
	f.calls.Add(1)
	if f.findTokenErr != nil {
		return nil, f.findTokenErr
	}
	return f.MemoryStore.FindTokenByHash(ctx, hash, now)
}

func (f *faultyStore) FindUserToken(ctx context.Context, userID int64, hash []byte) (*models.Token, error) {
	f.calls.Add(1)
	if f.findUserTokErr != nil {
		return nil, f.findUserTokErr
	}
	return f.MemoryStore.FindUserToken(ctx, userID, hash)
}

func (f *faultyStore) InsertToken(ctx context.Context, t *models.Token) error {
	f.calls.Add(1)
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemoryStore.InsertToken(ctx, t)
}

func (f *faultyStore) DeleteToken(ctx context.Context, id int64) error {
	f.calls.Add(1)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.MemoryStore.DeleteToken(ctx, id)
}

func (f *faultyStore) ListPolicyNamesForRole(ctx context.Context, roleID int64) ([]string, error) {
	if f.policiesErr != nil {
		return nil, f.policiesErr
	}
	return f.MemoryStore.ListPolicyNamesForRole(ctx, roleID)
}

func (f *faultyStore) GetRoleName(ctx context.Context, roleID int64) (string, error) {
	if f.roleNameErr != nil {
		return "", f.roleNameErr
	}
	return f.MemoryStore.GetRoleName(ctx, roleID)
}

func (f *faultyStore) CountUsers(ctx context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.MemoryStore.CountUsers(ctx)
}

func (f *faultyStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return f.MemoryStore.DeleteExpiredTokens(ctx, now)
}

func (f *faultyStore) ReplaceCredentials(ctx context.Context, userID int64, c models.PasswordCredentials) (int64, error) {
	if f.replaceErr != nil {
		return 0, f.replaceErr
	}
	return f.MemoryStore.ReplaceCredentials(ctx, userID, c)
}

type fixture struct {
	store   *faultyStore
	hasher  *countingHasher
	clock   *clock
	metrics *metrics.Metrics
	auth    *AuthService
	users   *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   &faultyStore{MemoryStore: credstore.NewMemoryStore()},
		hasher:  newHasher(t, cheap),
		clock:   &clock{t: t0},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	d := Deps{
		Hasher:  f.hasher,
		Tokens:  cryptox.NewTokenCodec(),
		Metrics: f.metrics,
		Now:     f.clock.Now,
	}

	var err error
	f.auth, err = NewAuthService(f.store, d, testConfig())
	require.NoError(t, err)
	f.users = NewUserService(f.store, d)
	return f
}

func (f *fixture) addUser(t *testing.T, name, password, role string) *models.User {
	t.Helper()
	u, err := f.users.CreateUser(context.Background(), name, "", password, role)
	require.NoError(t, err)
	return u
}
