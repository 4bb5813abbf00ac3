// Package cryptox holds the two hashing primitives of the auth core: a slow,
// salted argon2id password hasher and a fast, deterministic digest for
// access-token lookup. They are deliberately different functions.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/trzyszczcms/authcore/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	SaltLength = 16
	HashLength = 32
)

// Params are the argon2id cost parameters. They are stored with every user
// so that raising the defaults does not invalidate existing hashes.
type Params struct {
	Parallelism uint8
	Iterations  uint32
	MemoryKiB   uint32
}

func (p Params) Validate() error {
	if p.Parallelism == 0 || p.Iterations == 0 || p.MemoryKiB == 0 {
		return fmt.Errorf("%w: argon2 parameters must be non-zero (p=%d t=%d m=%d)",
			common.ErrConfiguration, p.Parallelism, p.Iterations, p.MemoryKiB)
	}
	// argon2 needs at least 8 KiB per lane.
	if p.MemoryKiB < 8*uint32(p.Parallelism) {
		return fmt.Errorf("%w: argon2 memory %d KiB is below 8 KiB per lane",
			common.ErrConfiguration, p.MemoryKiB)
	}
	return nil
}

// HashedPassword is the storable result of hashing a password.
type HashedPassword struct {
	Hash   []byte
	Salt   []byte
	Params Params
}

// PasswordHasher hashes new passwords with a fixed set of default parameters.
type PasswordHasher struct {
	params Params
}

func NewPasswordHasher(p Params) (*PasswordHasher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &PasswordHasher{params: p}, nil
}

func (h *PasswordHasher) Params() Params { return h.params }

// Hash derives a hash of plaintext under a fresh random salt.
func (h *PasswordHasher) Hash(plaintext string) (*HashedPassword, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return &HashedPassword{
		Hash:   derive(plaintext, salt, h.params),
		Salt:   salt,
		Params: h.params,
	}, nil
}

// Verify checks plaintext against a stored hash using the stored salt and
// parameters. A mismatch is (false, nil). Stored data that cannot be evaluated
// returns an error wrapping common.ErrConfiguration instead.
func (h *PasswordHasher) Verify(storedHash, storedSalt []byte, plaintext string, p Params) (bool, error) {
	return VerifyPassword(storedHash, storedSalt, plaintext, p)
}

func VerifyPassword(storedHash, storedSalt []byte, plaintext string, p Params) (bool, error) {
	if len(storedSalt) != SaltLength {
		return false, fmt.Errorf("%w: stored salt is %d bytes, want %d", common.ErrConfiguration, len(storedSalt), SaltLength)
	}
	if len(storedHash) != HashLength {
		return false, fmt.Errorf("%w: stored hash is %d bytes, want %d", common.ErrConfiguration, len(storedHash), HashLength)
	}
	if err := p.Validate(); err != nil {
		return false, err
	}

	candidate := derive(plaintext, storedSalt, p)
	return subtle.ConstantTimeCompare(storedHash, candidate) == 1, nil
}

func derive(plaintext string, salt []byte, p Params) []byte {
	return argon2.IDKey([]byte(plaintext), salt, p.Iterations, p.MemoryKiB, p.Parallelism, HashLength)
}
