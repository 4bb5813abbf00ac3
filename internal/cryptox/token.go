package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// AccessTokenBytes is the entropy of an access token (256 bits).
const AccessTokenBytes = 32

// TokenCodec creates opaque access tokens and the digests they are stored under.
type TokenCodec struct {
	random io.Reader
}

func NewTokenCodec() *TokenCodec {
	return &TokenCodec{random: rand.Reader}
}

// GenerateAccessToken returns a URL-safe plaintext token for the client and
// its digest for storage. The plaintext cannot be recovered from the digest.
func (c *TokenCodec) GenerateAccessToken() (string, []byte, error) {
	b := make([]byte, AccessTokenBytes)
	if _, err := io.ReadFull(c.random, b); err != nil {
		return "", nil, fmt.Errorf("generating access token: %w", err)
	}
	plaintext := base64.RawURLEncoding.EncodeToString(b)
	return plaintext, c.HashToken(plaintext), nil
}

// HashToken converts a presented token into its lookup key.
func (c *TokenCodec) HashToken(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return sum[:]
}
