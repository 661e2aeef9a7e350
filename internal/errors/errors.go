// Package errors provides error code definitions shared across the
// fieldsync core. Codes classify faults for the status layer; the wrapped
// error keeps the underlying cause for logs.
package errors

import "fmt"

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Storage errors
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrStoreCorrupted   ErrorCode = "STORE_CORRUPTED"
	ErrQuotaExceeded    ErrorCode = "STORE_QUOTA_EXCEEDED"
	ErrRecoveryFailed   ErrorCode = "STORE_RECOVERY_FAILED"
	ErrMigration        ErrorCode = "MIGRATION_FAILED"
	ErrConstraint       ErrorCode = "CONSTRAINT_VIOLATION"

	// Sync errors
	ErrSyncFailed  ErrorCode = "SYNC_FAILED"
	ErrSyncTimeout ErrorCode = "SYNC_TIMEOUT"
	ErrSyncBusy    ErrorCode = "SYNC_IN_PROGRESS"

	// Network errors
	ErrNetwork     ErrorCode = "NETWORK_ERROR"
	ErrOffline     ErrorCode = "OFFLINE"
	ErrProbeFailed ErrorCode = "PROBE_FAILED"

	// Cache errors
	ErrCacheInvalid ErrorCode = "CACHE_INVALID_ENTRY"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code. Wrapped AppErrors are
// unwrapped so a code survives fmt.Errorf("%w") chains.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		if appErr, ok := err.(*AppError); ok {
			if appErr.Code == code {
				return true
			}
			err = appErr.Err
			continue
		}
		type unwrapper interface{ Unwrap() error }
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the code of the outermost AppError, or ErrInternal when
// the error carries no code.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
