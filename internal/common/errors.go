// Package common defines shared constants and sentinel errors used across
// the auth core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound        = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrReferenceNotFound = errors.New("referenced record does not exist")
	ErrFactoryRole       = errors.New("factory role cannot be deleted")
	ErrRoleInUse         = errors.New("role is assigned to users")
	ErrorInvalidInput    = errors.New("invalid input")

	// ErrPersistence marks infrastructure failures of the credential store:
	// connection loss, constraint violations, aborted transactions, timeouts.
	// It is retryable by the caller and never converted into "no result".
	ErrPersistence = errors.New("persistence failure")

	// ErrConfiguration marks a stored credential that cannot be evaluated,
	// e.g. a hash or salt of the wrong length or missing cost parameters.
	ErrConfiguration = errors.New("configuration error")
)
