package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeValidation   = "validation_failed"
	ErrCodeRoomNotFound = "room_not_found"
	ErrCodeRoomFull     = "room_full"
	ErrCodeConflict     = "conflict"
	ErrCodeForbidden    = "forbidden"
	ErrCodeStore        = "store_error"
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
)

// Kinds of failure. Every error returned by Manager matches exactly one of
// these with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("room not found")
	ErrCapacity     = errors.New("room is full")
	ErrConflict     = errors.New("room conflict")
	ErrUnauthorized = errors.New("not allowed")
	ErrStore        = errors.New("room store unavailable")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string

	kind  error
	cause error
}

func (e *CoreError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *CoreError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.kind != nil {
		errs = append(errs, e.kind)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

func coreError(code string, kind error, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, kind: kind}
}

func validationError(format string, args ...any) *CoreError {
	return coreError(ErrCodeValidation, ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundError(msg string) *CoreError {
	return coreError(ErrCodeRoomNotFound, ErrNotFound, msg)
}

func capacityError() *CoreError {
	return coreError(ErrCodeRoomFull, ErrCapacity, "room is full")
}

func conflictError(msg string) *CoreError {
	return coreError(ErrCodeConflict, ErrConflict, msg)
}

func forbiddenError(msg string) *CoreError {
	return coreError(ErrCodeForbidden, ErrUnauthorized, msg)
}

// Forbidden builds the error returned when a non-creator issues a creator
// command. Session clients use it to reject such commands locally.
func Forbidden(msg string) *CoreError {
	return forbiddenError(msg)
}

func storeError(op string, cause error) *CoreError {
	e := coreError(ErrCodeStore, ErrStore, "room store unavailable")
	e.cause = fmt.Errorf("%s: %w", op, cause)
	return e
}

// AsCoreError extracts the coded error from err. Errors that did not come from
// the core are reported as store failures.
func AsCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return storeError("unexpected", err)
}
