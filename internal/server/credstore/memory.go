package credstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/trzyszczcms/authcore/internal/common"
	"github.com/trzyszczcms/authcore/internal/server/models"
)

// MemoryStore is an in-process Store and Admin. It enforces the same
// uniqueness and referential rules as the SQL schema and starts out with the
// policy catalog and the Admin factory role already seeded.
type MemoryStore struct {
	mu sync.RWMutex

	nextID      int64
	users       map[int64]models.User
	userByName  map[string]int64
	roles       map[int64]models.Role
	roleByName  map[string]int64
	policies    map[int64]models.Policy
	assignments map[int64]map[int64]struct{}
	tokens      map[int64]models.Token
	tokenByHash map[string]int64

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users:       make(map[int64]models.User),
		userByName:  make(map[string]int64),
		roles:       make(map[int64]models.Role),
		roleByName:  make(map[string]int64),
		policies:    make(map[int64]models.Policy),
		assignments: make(map[int64]map[int64]struct{}),
		tokens:      make(map[int64]models.Token),
		tokenByHash: make(map[string]int64),
		now:         time.Now,
	}

	admin := s.id()
	s.roles[admin] = models.Role{ID: admin, Name: models.AdminRoleName, FactoryRole: true}
	s.roleByName[models.AdminRoleName] = admin
	s.assignments[admin] = make(map[int64]struct{})
	for _, name := range models.PolicyCatalog {
		id := s.id()
		s.policies[id] = models.Policy{ID: id, Name: name}
		s.assignments[admin][id] = struct{}{}
	}
	return s
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func cloneUser(u models.User) *models.User {
	u.PasswordHash = slices.Clone(u.PasswordHash)
	u.PasswordSalt = slices.Clone(u.PasswordSalt)
	return &u
}

func cloneToken(t models.Token) *models.Token {
	t.HashedToken = slices.Clone(t.HashedToken)
	return &t
}

func (s *MemoryStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userByName[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *MemoryStore) FindTokenByHash(ctx context.Context, hash []byte, now time.Time) (*models.TokenLookup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokenByHash[string(hash)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	t := s.tokens[id]
	if !t.ExpiresAt.After(now) {
		return nil, common.ErrorNotFound
	}
	u := s.users[t.UserID]
	return &models.TokenLookup{
		Token:    *cloneToken(t),
		UserName: u.UserName,
		RoleID:   u.RoleID,
		RoleName: s.roles[u.RoleID].Name,
	}, nil
}

func (s *MemoryStore) FindUserToken(ctx context.Context, userID int64, hash []byte) (*models.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.tokenByHash[string(hash)]
	if !ok || s.tokens[id].UserID != userID {
		return nil, common.ErrorNotFound
	}
	return cloneToken(s.tokens[id]), nil
}

func (s *MemoryStore) InsertToken(ctx context.Context, t *models.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[t.UserID]; !ok {
		return common.ErrReferenceNotFound
	}
	key := string(t.HashedToken)
	if _, dup := s.tokenByHash[key]; dup {
		return common.ErrAlreadyExists
	}
	t.ID = s.id()
	t.ExpiresAt = t.ExpiresAt.UTC()
	s.tokens[t.ID] = *cloneToken(*t)
	s.tokenByHash[key] = t.ID
	return nil
}

func (s *MemoryStore) DeleteToken(ctx context.Context, tokenID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteTokenLocked(tokenID)
	return nil
}

func (s *MemoryStore) deleteTokenLocked(tokenID int64) {
	t, ok := s.tokens[tokenID]
	if !ok {
		return
	}
	delete(s.tokenByHash, string(t.HashedToken))
	delete(s.tokens, tokenID)
}

func (s *MemoryStore) ListPolicyNamesForRole(ctx context.Context, roleID int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := []string{}
	for pid := range s.assignments[roleID] {
		names = append(names, s.policies[pid].Name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *MemoryStore) GetRoleName(ctx context.Context, roleID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[roleID]
	if !ok {
		return "", common.ErrorNotFound
	}
	return r.Name, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.userByName[u.UserName]; dup {
		return common.ErrAlreadyExists
	}
	if _, ok := s.roles[u.RoleID]; !ok {
		return common.ErrReferenceNotFound
	}
	u.ID = s.id()
	u.CreatedAt = s.now().UTC()
	s.users[u.ID] = *cloneUser(*u)
	s.userByName[u.UserName] = u.ID
	return nil
}

func (s *MemoryStore) CountUsers(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, userID int64, c models.PasswordCredentials) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return common.ErrorNotFound
	}
	s.setCredentialsLocked(u, c)
	return nil
}

func (s *MemoryStore) ReplaceCredentials(ctx context.Context, userID int64, c models.PasswordCredentials) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	s.setCredentialsLocked(u, c)

	var n int64
	for id, t := range s.tokens {
		if t.UserID == userID {
			s.deleteTokenLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) setCredentialsLocked(u models.User, c models.PasswordCredentials) {
	u.SetCredentials(models.PasswordCredentials{
		Hash:          slices.Clone(c.Hash),
		Salt:          slices.Clone(c.Salt),
		Parallelism:   c.Parallelism,
		Iterations:    c.Iterations,
		MemoryCostKiB: c.MemoryCostKiB,
	})
	s.users[u.ID] = u
}

func (s *MemoryStore) CreateRole(ctx context.Context, r *models.Role) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.roleByName[r.Name]; dup {
		return common.ErrAlreadyExists
	}
	r.ID = s.id()
	s.roles[r.ID] = *r
	s.roleByName[r.Name] = r.ID
	s.assignments[r.ID] = make(map[int64]struct{})
	return nil
}

func (s *MemoryStore) FindRoleByName(ctx context.Context, name string) (*models.Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.roleByName[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	r := s.roles[id]
	return &r, nil
}

func (s *MemoryStore) DeleteRole(ctx context.Context, roleID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[roleID]
	if !ok {
		return common.ErrorNotFound
	}
	if r.FactoryRole {
		return common.ErrFactoryRole
	}
	for _, u := range s.users {
		if u.RoleID == roleID {
			return common.ErrRoleInUse
		}
	}
	delete(s.roleByName, r.Name)
	delete(s.assignments, roleID)
	delete(s.roles, roleID)
	return nil
}

func (s *MemoryStore) ListPolicies(ctx context.Context) ([]models.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b models.Policy) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *MemoryStore) FindPolicyByName(ctx context.Context, name string) (*models.Policy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.policies {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (s *MemoryStore) AssignPolicy(ctx context.Context, roleID, policyID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[roleID]; !ok {
		return common.ErrReferenceNotFound
	}
	if _, ok := s.policies[policyID]; !ok {
		return common.ErrReferenceNotFound
	}
	s.assignments[roleID][policyID] = struct{}{}
	return nil
}

func (s *MemoryStore) DeleteUserTokens(ctx context.Context, userID int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if t.UserID == userID {
			s.deleteTokenLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if !t.ExpiresAt.After(now) {
			s.deleteTokenLocked(id)
			n++
		}
	}
	return n, nil
}
