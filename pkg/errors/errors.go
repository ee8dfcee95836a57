// Package errors defines common error types for the training engine.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the training engine.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeConfigInvalid      = "CONFIG_INVALID"
	CodeDataMalformed      = "DATA_MALFORMED"
	CodeCapacityExceeded   = "CAPACITY_EXCEEDED"
	CodeTransportTransient = "TRANSPORT_TRANSIENT"
	CodeNumericError       = "NUMERIC_ERROR"
	CodeNotFound           = "NOT_FOUND"
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

// Common error instances.
var (
	ErrConfigInvalid      = New(CodeConfigInvalid, "invalid configuration")
	ErrDataMalformed      = New(CodeDataMalformed, "malformed training data")
	ErrCapacityExceeded   = New(CodeCapacityExceeded, "capacity exceeded")
	ErrTransportTransient = New(CodeTransportTransient, "transient transport error")
	ErrNumericError       = New(CodeNumericError, "numeric error")
	ErrNotFound           = New(CodeNotFound, "resource not found")
)

// IsConfigInvalid checks if the error is a configuration error.
func IsConfigInvalid(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

// IsDataMalformed checks if the error is a malformed-data error.
func IsDataMalformed(err error) bool {
	return errors.Is(err, ErrDataMalformed)
}

// IsCapacityExceeded checks if the error is a capacity-exceeded error.
func IsCapacityExceeded(err error) bool {
	return errors.Is(err, ErrCapacityExceeded)
}

// IsTransportTransient checks if the error is a transient transport error
// (the caller may retry the push/pull).
func IsTransportTransient(err error) bool {
	return errors.Is(err, ErrTransportTransient)
}

// IsNumericError checks if the error is a numeric error (NaN/Inf encountered
// in a gradient or weight).
func IsNumericError(err error) bool {
	return errors.Is(err, ErrNumericError)
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

// ErrorInfo provides a code lookup by symbolic error name.
var ErrorInfo = map[string]string{
	"ConfigInvalid":      CodeConfigInvalid,
	"DataMalformed":      CodeDataMalformed,
	"CapacityExceeded":   CodeCapacityExceeded,
	"TransportTransient": CodeTransportTransient,
	"NumericError":       CodeNumericError,
}
