// Package services contains the business logic of the auth core. This file
// implements AuthService: password login, access-token validation and
// revocation.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/cryptox"
	"github.com/trzyszczcms/authcore/internal/logging"
	"github.com/trzyszczcms/authcore/internal/server/config"
	"github.com/trzyszczcms/authcore/internal/server/credstore"
	"github.com/trzyszczcms/authcore/internal/server/metrics"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

// PasswordHasher is satisfied by *cryptox.PasswordHasher.
type PasswordHasher interface {
	Params() cryptox.Params
	Hash(plaintext string) (*cryptox.HashedPassword, error)
	Verify(storedHash, storedSalt []byte, plaintext string, p cryptox.Params) (bool, error)
}

// TokenCodec is satisfied by *cryptox.TokenCodec.
type TokenCodec interface {
	GenerateAccessToken() (string, []byte, error)
	HashToken(plaintext string) []byte
}

// Deps are the collaborators shared by the services. Logger, Metrics and Now
// are optional.
type Deps struct {
	Hasher  PasswordHasher
	Tokens  TokenCodec
	Logger  logging.Logger
	Metrics metrics.Recorder
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// AuthService issues, validates and revokes access tokens. It holds no
// mutable state and is safe for concurrent use.
type AuthService struct {
	store     credstore.Store
	hasher    PasswordHasher
	tokens    TokenCodec
	log       logging.Logger
	metrics   metrics.Recorder
	now       func() time.Time
	longTerm  time.Duration
	shortTerm time.Duration

	// Verified instead of a real credential when the username is unknown.
	decoy *cryptox.HashedPassword
}

func NewAuthService(store credstore.Store, d Deps, cfg *config.Config) (*AuthService, error) {
	if d.Hasher == nil || d.Tokens == nil {
		return nil, errors.New("auth service: hasher and token codec are required")
	}
	if cfg.LongTermTokenValidity <= 0 || cfg.ShortTermTokenValidity <= 0 {
		return nil, fmt.Errorf("%w: token validity windows must be positive", common.ErrConfiguration)
	}
	d = d.withDefaults()

	secret, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	decoy, err := d.Hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("auth service: decoy credential: %w", err)
	}

	return &AuthService{
		store:     store,
		hasher:    d.Hasher,
		tokens:    d.Tokens,
		log:       d.Logger.With("module", "auth"),
		metrics:   d.Metrics,
		now:       d.Now,
		longTerm:  cfg.LongTermTokenValidity,
		shortTerm: cfg.ShortTermTokenValidity,
		decoy:     decoy,
	}, nil
}

// Login checks username and password and, on success, stores a new access
// token and returns the session carrying its plaintext. A wrong username or
// password is (nil, nil); both paths do the same amount of hashing work.
// remember selects the long-term validity window.
func (s *AuthService) Login(ctx context.Context, username, password string, remember bool) (*models.SessionInfo, error) {
	if username == "" || password == "" {
		s.metrics.LoginAttempt(metrics.OutcomeRejected)
		return nil, nil
	}

	user, err := s.store.FindUserByUsername(ctx, username)
	if errors.Is(err, common.ErrorNotFound) {
		_, _ = s.verify(s.decoy.Hash, s.decoy.Salt, password, s.decoy.Params)
		s.metrics.LoginAttempt(metrics.OutcomeRejected)
		s.log.Info(ctx, "login rejected", "username", username)
		return nil, nil
	}
	if err != nil {
		s.metrics.LoginAttempt(metrics.OutcomeError)
		return nil, s.persistenceError(ctx, "find user", err)
	}

	ok, err := s.verify(user.PasswordHash, user.PasswordSalt, password, cryptox.Params{
		Parallelism: user.Parallelism,
		Iterations:  user.Iterations,
		MemoryKiB:   user.MemoryCostKiB,
	})
	if err != nil {
		s.metrics.LoginAttempt(metrics.OutcomeError)
		s.log.Error(ctx, "stored credential cannot be evaluated", "user_id", user.ID, "error", err)
		return nil, err
	}
	if !ok {
		s.metrics.LoginAttempt(metrics.OutcomeRejected)
		s.log.Info(ctx, "login rejected", "username", username)
		return nil, nil
	}

	plaintext, hashed, err := s.tokens.GenerateAccessToken()
	if err != nil {
		s.metrics.LoginAttempt(metrics.OutcomeError)
		return nil, fmt.Errorf("login: %w", err)
	}

	validity := s.shortTerm
	if remember {
		validity = s.longTerm
	}
	token := &models.Token{
		UserID:      user.ID,
		HashedToken: hashed,
		ExpiresAt:   s.now().UTC().Add(validity),
	}
	if err := s.store.InsertToken(ctx, token); err != nil {
		s.metrics.LoginAttempt(metrics.OutcomeError)
		return nil, s.persistenceError(ctx, "insert token", err)
	}

	session, err := s.session(ctx, user.ID, user.UserName, user.RoleID, "", token.ExpiresAt)
	if err != nil {
		s.metrics.LoginAttempt(metrics.OutcomeError)
		return nil, err
	}
	session.AccessToken = plaintext

	s.metrics.LoginAttempt(metrics.OutcomeSuccess)
	s.log.Info(ctx, "login succeeded", "user_id", user.ID, "remember", remember, "expires_at", token.ExpiresAt)
	return session, nil
}

// ValidateToken resolves a presented token to its session. Unknown and
// expired tokens are (nil, nil). A token expiring exactly now is expired.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*models.SessionInfo, error) {
	if token == "" {
		s.metrics.TokenValidation(metrics.OutcomeRejected)
		return nil, nil
	}

	l, err := s.store.FindTokenByHash(ctx, s.tokens.HashToken(token), s.now().UTC())
	if errors.Is(err, common.ErrorNotFound) {
		s.metrics.TokenValidation(metrics.OutcomeRejected)
		return nil, nil
	}
	if err != nil {
		s.metrics.TokenValidation(metrics.OutcomeError)
		return nil, s.persistenceError(ctx, "find token", err)
	}

	session, err := s.session(ctx, l.Token.UserID, l.UserName, l.RoleID, l.RoleName, l.Token.ExpiresAt)
	if err != nil {
		s.metrics.TokenValidation(metrics.OutcomeError)
		return nil, err
	}
	session.AccessToken = token

	s.metrics.TokenValidation(metrics.OutcomeSuccess)
	return session, nil
}

// RevokeToken deletes the token if it belongs to userID. Revoking a token
// that is unknown, already revoked or owned by someone else is a no-op.
func (s *AuthService) RevokeToken(ctx context.Context, userID int64, token string) error {
	if token == "" {
		s.metrics.TokenRevocation(metrics.OutcomeAbsent)
		return nil
	}

	t, err := s.store.FindUserToken(ctx, userID, s.tokens.HashToken(token))
	if errors.Is(err, common.ErrorNotFound) {
		s.metrics.TokenRevocation(metrics.OutcomeAbsent)
		return nil
	}
	if err != nil {
		s.metrics.TokenRevocation(metrics.OutcomeError)
		return s.persistenceError(ctx, "find token", err)
	}

	if err := s.store.DeleteToken(ctx, t.ID); err != nil {
		s.metrics.TokenRevocation(metrics.OutcomeError)
		return s.persistenceError(ctx, "delete token", err)
	}

	s.metrics.TokenRevocation(metrics.OutcomeSuccess)
	s.log.Info(ctx, "token revoked", "user_id", userID, "token_id", t.ID)
	return nil
}

func (s *AuthService) verify(hash, salt []byte, password string, p cryptox.Params) (bool, error) {
	start := time.Now()
	defer func() { s.metrics.PasswordVerification(time.Since(start)) }()
	return s.hasher.Verify(hash, salt, password, p)
}

// session builds a SessionInfo without the token plaintext. roleName is
// looked up when empty.
func (s *AuthService) session(ctx context.Context, userID int64, username string, roleID int64, roleName string, expires time.Time) (*models.SessionInfo, error) {
	if roleName == "" {
		name, err := s.store.GetRoleName(ctx, roleID)
		if err != nil {
			return nil, s.persistenceError(ctx, "get role", err)
		}
		roleName = name
	}

	policies, err := s.store.ListPolicyNamesForRole(ctx, roleID)
	if err != nil {
		return nil, s.persistenceError(ctx, "list policies", err)
	}

	return &models.SessionInfo{
		UserID:    userID,
		UserName:  username,
		ExpiresAt: expires.UTC(),
		RoleID:    roleID,
		RoleName:  roleName,
		Policies:  models.NormalizePolicies(policies),
	}, nil
}

func (s *AuthService) persistenceError(ctx context.Context, op string, err error) error {
	s.log.Error(ctx, "credential store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", common.ErrPersistence, op, err)
}
