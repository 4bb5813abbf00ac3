package models

import "time"

// Token is a stored access token. Only the digest of the plaintext is kept.
type Token struct {
	ID          int64
	UserID      int64
	HashedToken []byte
	ExpiresAt   time.Time
}

// TokenLookup is a valid token joined with its owner and the owner's role.
type TokenLookup struct {
	Token    Token
	UserName string
	RoleID   int64
	RoleName string
}
