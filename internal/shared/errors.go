package shared

import "errors"

var (
	// ErrNotFound indicates resource not found within the caller's tenant scope.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor lacks a required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidCredentials indicates API token verification failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConcurrencyConflict indicates a write lost a race and should be retried by the caller.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)
