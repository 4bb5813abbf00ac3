package models

import "time"

// User is an account that can log in. The password hash, salt and the three
// argon2 cost parameters are always written together.
type User struct {
	ID            int64
	UserName      string
	Description   string
	PasswordHash  []byte
	PasswordSalt  []byte
	Parallelism   uint8
	Iterations    uint32
	MemoryCostKiB uint32
	RoleID        int64
	CreatedAt     time.Time
}

// PasswordCredentials is the replaceable part of a User.
type PasswordCredentials struct {
	Hash          []byte
	Salt          []byte
	Parallelism   uint8
	Iterations    uint32
	MemoryCostKiB uint32
}

func (u *User) Credentials() PasswordCredentials {
	return PasswordCredentials{
		Hash:          u.PasswordHash,
		Salt:          u.PasswordSalt,
		Parallelism:   u.Parallelism,
		Iterations:    u.Iterations,
		MemoryCostKiB: u.MemoryCostKiB,
	}
}

func (u *User) SetCredentials(c PasswordCredentials) {
	u.PasswordHash = c.Hash
	u.PasswordSalt = c.Salt
	u.Parallelism = c.Parallelism
	u.Iterations = c.Iterations
	u.MemoryCostKiB = c.MemoryCostKiB
}
