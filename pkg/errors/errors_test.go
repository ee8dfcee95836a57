package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeConfigInvalid, "threshold must be positive"),
			expected: "[CONFIG_INVALID] threshold must be positive",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeTransportTransient, "push failed", errors.New("connection reset")),
			expected: "[TRANSPORT_TRANSIENT] push failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeDataMalformed, "bad row", underlying)

	unwrapped := err.Unwrap()
	assert.Equal(t, underlying, unwrapped)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeDataMalformed, "error 1")
	err2 := New(CodeDataMalformed, "error 2")
	err3 := New(CodeConfigInvalid, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsConfigInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"config error", ErrConfigInvalid, true},
		{"wrapped config error", Wrap(CodeConfigInvalid, "bad alpha", errors.New("must be > 0")), true},
		{"other error", ErrDataMalformed, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsConfigInvalid(tt.err))
		})
	}
}

func TestIsDataMalformed(t *testing.T) {
	assert.True(t, IsDataMalformed(ErrDataMalformed))
	assert.False(t, IsDataMalformed(ErrConfigInvalid))
}

func TestIsCapacityExceeded(t *testing.T) {
	assert.True(t, IsCapacityExceeded(ErrCapacityExceeded))
	assert.False(t, IsCapacityExceeded(ErrConfigInvalid))
}

func TestIsTransportTransient(t *testing.T) {
	assert.True(t, IsTransportTransient(ErrTransportTransient))
	assert.False(t, IsTransportTransient(ErrConfigInvalid))
}

func TestIsNumericError(t *testing.T) {
	assert.True(t, IsNumericError(ErrNumericError))
	assert.False(t, IsNumericError(ErrConfigInvalid))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeDataMalformed, "bad row"),
			expected: CodeDataMalformed,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeTransportTransient, "push", errors.New("inner")),
			expected: CodeTransportTransient,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: CodeUnknown,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorCode(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeDataMalformed, "row 12 has no label"),
			expected: "row 12 has no label",
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: "standard error",
		},
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetErrorMessage(tt.err))
		})
	}
}

func TestErrorInfo(t *testing.T) {
	assert.Equal(t, CodeConfigInvalid, ErrorInfo["ConfigInvalid"])
	assert.Equal(t, CodeDataMalformed, ErrorInfo["DataMalformed"])
	assert.Equal(t, CodeCapacityExceeded, ErrorInfo["CapacityExceeded"])
	assert.Equal(t, CodeTransportTransient, ErrorInfo["TransportTransient"])
	assert.Equal(t, CodeNumericError, ErrorInfo["NumericError"])
}
