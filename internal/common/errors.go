// Package common defines shared constants and the error taxonomy used across
// client and server layers of bizledger. Callers should use errors.Is and
// errors.As to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors.
	ErrorInternal       = errors.New("internal error")
	ErrorBadCredentials = errors.New("incorrect email or password")
)

// AuthReason tells why a credential was rejected.
type AuthReason string

const (
	ReasonExpired AuthReason = "expired"
	ReasonInvalid AuthReason = "invalid"
	ReasonStale   AuthReason = "stale"
)

// AuthenticationError is returned when an access or refresh credential fails
// verification or the latest-token check. It always maps to 401.
type AuthenticationError struct {
	Reason AuthReason
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + string(e.Reason)
}

// Token lifecycle errors. They are pointers, so errors.Is matches identity
// and errors.As extracts the reason.
var (
	ErrTokenExpired = &AuthenticationError{Reason: ReasonExpired}
	ErrInvalidToken = &AuthenticationError{Reason: ReasonInvalid}
	ErrStaleToken   = &AuthenticationError{Reason: ReasonStale}
)

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError is a shorthand for &ValidationError{...}.
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// StorageError wraps a failed read or write against the store, including
// deadline expiry of a store call.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err unless it is nil or already a StorageError.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// CompensationError means an order header was updated, the item insert failed
// and the corrective update failed too. The stored total now overcounts and
// needs manual reconciliation.
type CompensationError struct {
	OrderID     string
	Cause       error
	RollbackErr error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation failed for order %s: insert: %v; rollback: %v", e.OrderID, e.Cause, e.RollbackErr)
}

// Unwrap exposes both the original failure and the rollback failure.
func (e *CompensationError) Unwrap() []error {
	return []error{e.Cause, e.RollbackErr}
}

// IsDomainError reports whether err is an expected business outcome rather
// than an infrastructure failure: not found, already exists, an
// authentication rejection or a validation error.
func IsDomainError(err error) bool {
	if errors.Is(err, ErrorNotFound) || errors.Is(err, ErrorAlreadyExists) || errors.Is(err, ErrorBadCredentials) {
		return true
	}
	var ae *AuthenticationError
	var ve *ValidationError
	return errors.As(err, &ae) || errors.As(err, &ve)
}
