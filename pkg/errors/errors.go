// Package errors defines the coded error type shared by the filter pipeline.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown          = "UNKNOWN_ERROR"
	CodeInvalidInput     = "INVALID_INPUT"
	CodeConfigError      = "CONFIG_ERROR"
	CodeRecordFormat     = "RECORD_FORMAT"
	CodeParseError       = "PARSE_ERROR"
	CodeUnsupported      = "UNSUPPORTED"
	CodeClassNotFound    = "CLASS_NOT_FOUND"
	CodeProbeMismatch    = "PROBE_MISMATCH"
	CodeChecksumMismatch = "CHECKSUM_MISMATCH"
	CodeStorageError     = "STORAGE_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"
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

// Is reports whether target is an AppError with the same code.
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

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Sentinels for errors.Is comparisons. Only the code is compared.
var (
	ErrInvalidInput     = New(CodeInvalidInput, "invalid input")
	ErrConfigError      = New(CodeConfigError, "configuration error")
	ErrRecordFormat     = New(CodeRecordFormat, "invalid execution data")
	ErrParseError       = New(CodeParseError, "class parse error")
	ErrUnsupported      = New(CodeUnsupported, "unsupported class")
	ErrClassNotFound    = New(CodeClassNotFound, "class not found")
	ErrProbeMismatch    = New(CodeProbeMismatch, "probe count mismatch")
	ErrChecksumMismatch = New(CodeChecksumMismatch, "class checksum mismatch")
	ErrStorageError     = New(CodeStorageError, "storage error")
	ErrDatabaseError    = New(CodeDatabaseError, "database error")
)

// IsInvalidInput checks if the error is an invalid input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsClassNotFound checks if the error is an unresolvable class error.
func IsClassNotFound(err error) bool {
	return errors.Is(err, ErrClassNotFound)
}

// IsPerClass reports whether err only affects a single class and the
// surrounding batch may continue.
func IsPerClass(err error) bool {
	switch GetErrorCode(err) {
	case CodeParseError, CodeUnsupported, CodeClassNotFound, CodeProbeMismatch, CodeChecksumMismatch:
		return true
	}
	return false
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
