package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/logging"
	"github.com/trzyszczcms/authcore/internal/server/credstore"
	"github.com/trzyszczcms/authcore/internal/server/metrics"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

const (
	// AdminUserName is the account created by SeedAdmin on an empty store.
	AdminUserName = "admin"

	maxDescriptionLength = 250
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9._-]{1,40}$`)

// UserService provisions users, roles and policy grants.
type UserService struct {
	store   credstore.Admin
	hasher  PasswordHasher
	log     logging.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

func NewUserService(store credstore.Admin, d Deps) *UserService {
	d = d.withDefaults()
	return &UserService{
		store:   store,
		hasher:  d.Hasher,
		log:     d.Logger.With("module", "users"),
		metrics: d.Metrics,
		now:     d.Now,
	}
}

// CreateUser hashes password with the current default parameters and stores
// a new user in the named role.
func (s *UserService) CreateUser(ctx context.Context, username, description, password, roleName string) (*models.User, error) {
	if !nameRe.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 1-40 letters, digits, '.', '_' or '-'", common.ErrorInvalidInput)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, fmt.Errorf("%w: description longer than %d characters", common.ErrorInvalidInput, maxDescriptionLength)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is empty", common.ErrorInvalidInput)
	}

	role, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return nil, storeError("find role "+roleName, err)
	}

	hp, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		UserName:      username,
		Description:   description,
		PasswordHash:  hp.Hash,
		PasswordSalt:  hp.Salt,
		Parallelism:   hp.Params.Parallelism,
		Iterations:    hp.Params.Iterations,
		MemoryCostKiB: hp.Params.MemoryKiB,
		RoleID:        role.ID,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, storeError("create user", err)
	}

	s.log.Info(ctx, "user created", "user_id", u.ID, "username", u.UserName, "role", role.Name)
	return u, nil
}

// ChangePassword re-hashes the password under the current default parameters
// and revokes every token of the user. It returns the number of revoked tokens.
func (s *UserService) ChangePassword(ctx context.Context, username, newPassword string) (int64, error) {
	if newPassword == "" {
		return 0, fmt.Errorf("%w: password is empty", common.ErrorInvalidInput)
	}

	u, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return 0, storeError("find user", err)
	}

	hp, err := s.hasher.Hash(newPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	n, err := s.store.ReplaceCredentials(ctx, u.ID, models.PasswordCredentials{
		Hash:          hp.Hash,
		Salt:          hp.Salt,
		Parallelism:   hp.Params.Parallelism,
		Iterations:    hp.Params.Iterations,
		MemoryCostKiB: hp.Params.MemoryKiB,
	})
	if err != nil {
		return 0, storeError("replace credentials", err)
	}

	s.log.Info(ctx, "password changed", "user_id", u.ID, "revoked_tokens", n)
	return n, nil
}

func (s *UserService) CreateRole(ctx context.Context, name string) (*models.Role, error) {
	if !nameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: role name must be 1-40 letters, digits, '.', '_' or '-'", common.ErrorInvalidInput)
	}
	r := &models.Role{Name: name}
	if err := s.store.CreateRole(ctx, r); err != nil {
		return nil, storeError("create role", err)
	}
	s.log.Info(ctx, "role created", "role_id", r.ID, "role", name)
	return r, nil
}

func (s *UserService) DeleteRole(ctx context.Context, name string) error {
	r, err := s.store.FindRoleByName(ctx, name)
	if err != nil {
		return storeError("find role "+name, err)
	}
	if err := s.store.DeleteRole(ctx, r.ID); err != nil {
		return storeError("delete role", err)
	}
	s.log.Info(ctx, "role deleted", "role_id", r.ID, "role", name)
	return nil
}

// GrantPolicy assigns a policy to a role. Granting twice is not an error.
func (s *UserService) GrantPolicy(ctx context.Context, roleName, policyName string) error {
	r, err := s.store.FindRoleByName(ctx, roleName)
	if err != nil {
		return storeError("find role "+roleName, err)
	}
	p, err := s.store.FindPolicyByName(ctx, policyName)
	if err != nil {
		return storeError("find policy "+policyName, err)
	}
	if err := s.store.AssignPolicy(ctx, r.ID, p.ID); err != nil {
		return storeError("assign policy", err)
	}
	s.log.Info(ctx, "policy granted", "role", r.Name, "policy", p.Name)
	return nil
}

func (s *UserService) ListPolicies(ctx context.Context) ([]models.Policy, error) {
	ps, err := s.store.ListPolicies(ctx)
	if err != nil {
		return nil, storeError("list policies", err)
	}
	return ps, nil
}

// SeedAdmin creates the admin account with a random password when the store
// has no users yet and returns that password. On a populated store it does
// nothing and returns "". The password is not logged; showing it to the
// operator is up to the caller.
func (s *UserService) SeedAdmin(ctx context.Context) (string, error) {
	n, err := s.store.CountUsers(ctx)
	if err != nil {
		return "", storeError("count users", err)
	}
	if n > 0 {
		return "", nil
	}

	password, err := common.MakeRandHexString(16)
	if err != nil {
		return "", err
	}
	if _, err := s.CreateUser(ctx, AdminUserName, "Built-in administrator", password, models.AdminRoleName); err != nil {
		return "", err
	}

	s.log.Warn(ctx, "seeded administrator account, change its password", "username", AdminUserName)
	return password, nil
}

// PurgeExpiredTokens removes tokens that expired at or before now.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, storeError("purge tokens", err)
	}
	s.metrics.TokensPurged(n)
	if n > 0 {
		s.log.Debug(ctx, "expired tokens purged", "count", n)
	}
	return n, nil
}

// storeError keeps business sentinels matchable and marks everything else
// as a persistence failure.
func storeError(op string, err error) error {
	for _, sentinel := range []error{
		common.ErrorNotFound,
		common.ErrAlreadyExists,
		common.ErrReferenceNotFound,
		common.ErrFactoryRole,
		common.ErrRoleInUse,
	} {
		if errors.Is(err, sentinel) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", common.ErrPersistence, op, err)
}
