package errors

import (
	"errors"
	"fmt"
)

// Domain errors - Sentinel errors for use with errors.Is()
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrIdentityExpired    = errors.New("identity expired")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrConflict           = errors.New("version conflict")
	ErrBadRequest         = errors.New("bad request")
)

const (
	CodeNotFound           = "NOT_FOUND"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeInvalidDocument    = "INVALID_DOCUMENT"
	CodeIdentityExpired    = "IDENTITY_EXPIRED"
	CodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
	CodeConflict           = "CONFLICT"
	CodeBadRequest         = "BAD_REQUEST"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

// Custom error type with context
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructors
func NotFound(msg string) *AppError {
	return &AppError{Code: CodeNotFound, Message: msg, Err: ErrNotFound}
}

func Unauthorized(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: msg, Err: ErrUnauthorized}
}

func InvalidDocument(msg string) *AppError {
	return &AppError{Code: CodeInvalidDocument, Message: msg, Err: ErrInvalidDocument}
}

func IdentityExpired(msg string) *AppError {
	return &AppError{Code: CodeIdentityExpired, Message: msg, Err: ErrIdentityExpired}
}

func Conflict(msg string) *AppError {
	return &AppError{Code: CodeConflict, Message: msg, Err: ErrConflict}
}

func BadRequest(msg string) *AppError {
	return &AppError{Code: CodeBadRequest, Message: msg, Err: ErrBadRequest}
}

// StorageUnavailable wraps a transient infrastructure failure. The cause is kept
// reachable through errors.Unwrap so callers can still inspect it.
func StorageUnavailable(msg string, cause error) *AppError {
	return &AppError{Code: CodeStorageUnavailable, Message: msg, Err: &wrapped{sentinel: ErrStorageUnavailable, cause: cause}}
}

// PersistenceFailure reports a multi-store write that was only partially applied.
func PersistenceFailure(msg string, cause error) *AppError {
	return &AppError{Code: CodePersistenceFailure, Message: msg, Err: &wrapped{sentinel: ErrPersistenceFailure, cause: cause}}
}

// wrapped lets an AppError match both its sentinel and the underlying cause.
type wrapped struct {
	sentinel error
	cause    error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return w.sentinel.Error()
	}
	return fmt.Sprintf("%v: %v", w.sentinel, w.cause)
}

func (w *wrapped) Unwrap() []error {
	if w.cause == nil {
		return []error{w.sentinel}
	}
	return []error{w.sentinel, w.cause}
}

// CodeOf returns the AppError code carried by err, or derives one from the sentinel chain.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != "" {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidDocument):
		return CodeInvalidDocument
	case errors.Is(err, ErrIdentityExpired):
		return CodeIdentityExpired
	case errors.Is(err, ErrStorageUnavailable):
		return CodeStorageUnavailable
	case errors.Is(err, ErrPersistenceFailure):
		return CodePersistenceFailure
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest
	default:
		return CodeInternal
	}
}
