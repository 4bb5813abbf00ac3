package models

import (
	"slices"
	"time"
)

// SessionInfo is what a caller learns about an authenticated user. AccessToken
// holds the plaintext token; it is set at login and echoed back on validation.
type SessionInfo struct {
	UserID      int64     `json:"user_id"`
	UserName    string    `json:"username"`
	AccessToken string    `json:"access_token,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	RoleID      int64     `json:"role_id"`
	RoleName    string    `json:"role_name"`
	Policies    []string  `json:"policies"`
}

// HasPolicy reports whether the session's role grants the named policy.
// Policies is kept sorted.
func (s *SessionInfo) HasPolicy(name string) bool {
	if s == nil {
		return false
	}
	_, ok := slices.BinarySearch(s.Policies, name)
	return ok
}

// NormalizePolicies sorts names and drops duplicates in place.
func NormalizePolicies(names []string) []string {
	if names == nil {
		return []string{}
	}
	slices.Sort(names)
	return slices.Compact(names)
}
