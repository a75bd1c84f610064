// Package errors defines common error types for the application.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown                = "UNKNOWN_ERROR"
	CodeDatabaseError          = "DATABASE_ERROR"
	CodeStorageError           = "STORAGE_ERROR"
	CodeParseError             = "PARSE_ERROR"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeNotFound               = "NOT_FOUND"
	CodeConfigError            = "CONFIG_ERROR"
	CodeInterrupted            = "INTERRUPTED"
	CodeCorruptSnapshot        = "CORRUPT_SNAPSHOT"
	CodeUnsupportedVersion     = "UNSUPPORTED_VERSION"
	CodeInvariant              = "INVARIANT_VIOLATION"
	CodeIncompatibleSnapshots  = "INCOMPATIBLE_SNAPSHOTS"
	CodeSnapshotNotFound       = "SNAPSHOT_NOT_FOUND"
	CodeUnsupportedCompression = "UNSUPPORTED_COMPRESSION"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
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

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Common error instances.
var (
	ErrDatabaseError       = New(CodeDatabaseError, "database error")
	ErrStorageError        = New(CodeStorageError, "storage error")
	ErrParseError          = New(CodeParseError, "parse error")
	ErrInvalidInput        = New(CodeInvalidInput, "invalid input")
	ErrNotFound            = New(CodeNotFound, "resource not found")
	ErrConfigError         = New(CodeConfigError, "configuration error")
	ErrInterrupted         = New(CodeInterrupted, "operation interrupted")
	ErrCorruptSnapshot     = New(CodeCorruptSnapshot, "corrupt snapshot")
	ErrUnsupportedVersion  = New(CodeUnsupportedVersion, "unsupported snapshot version")
	ErrInvariant           = New(CodeInvariant, "invariant violation")
	ErrIncompatible        = New(CodeIncompatibleSnapshots, "incompatible snapshots")
	ErrSnapshotNotFound    = New(CodeSnapshotNotFound, "snapshot not found")
	ErrUnsupportedCompress = New(CodeUnsupportedCompression, "unsupported compression")
)

// Interrupted wraps a context error into an interruption error.
// It returns nil when err is nil.
func Interrupted(err error) error {
	if err == nil {
		return nil
	}
	return Wrap(CodeInterrupted, "operation interrupted", err)
}

// IsInterrupted checks if the error is an interruption.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// IsCorruptSnapshot checks if the error reports malformed or truncated snapshot data.
func IsCorruptSnapshot(err error) bool {
	return errors.Is(err, ErrCorruptSnapshot)
}

// IsInvariant checks if the error is a programmer error.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrInvariant) || errors.Is(err, ErrIncompatible)
}

// IsNotFound checks if the error reports a missing resource or snapshot.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrSnapshotNotFound)
}

// IsDatabaseError checks if the error is a database error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsStorageError checks if the error is a storage error.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageError)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
