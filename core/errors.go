package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOperationFailed is the generic failure reported to callers when nothing more specific applies.
var ErrOperationFailed = errors.New("operation failed")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// AuthError is returned when a credential could not be obtained or verified:
// a missing/invalid bearer token, or a rejected token exchange with the backing store.
type AuthError struct {
	Msg string
	Err error
}

func NewAuthError(msg string, err error) error {
	return &AuthError{Msg: msg, Err: err}
}

func (err AuthError) Error() string {
	if err.Err == nil {
		return err.Msg
	}
	return err.Msg + ": " + err.Err.Error()
}

// AuthorizationError is returned when the authenticated subject does not own the requested resource.
type AuthorizationError struct {
	Subject string
	Owner   string
}

func (err AuthorizationError) Error() string {
	return "permission denied"
}

// StoreError carries the message of a failed backing store call.
type StoreError struct {
	Status  int
	Message string
}

func (err StoreError) Error() string {
	if err.Status == 0 {
		return "store: " + err.Message
	}
	return fmt.Sprintf("store: http %d: %s", err.Status, err.Message)
}

func IsAuthError(err error) bool {
	_, ok := errors.Cause(err).(*AuthError)
	return ok
}

func IsAuthorizationError(err error) bool {
	_, ok := errors.Cause(err).(*AuthorizationError)
	return ok
}

func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
