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
			err:      New(CodeInvalidConfiguration, "worker count must be positive"),
			expected: "[INVALID_CONFIGURATION] worker count must be positive",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeBackendError, "iteration failed", errors.New("kernel fault")),
			expected: "[BACKEND_ERROR] iteration failed: kernel fault",
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
	err := Wrap(CodeMergerMismatch, "merge failed", underlying)

	unwrapped := err.Unwrap()
	assert.Equal(t, underlying, unwrapped)
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeInvalidConfiguration, "error 1")
	err2 := New(CodeInvalidConfiguration, "error 2")
	err3 := New(CodeDependencyViolation, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsInvalidLifecycleTransition(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "lifecycle error",
			err:      ErrInvalidLifecycleTransition,
			expected: true,
		},
		{
			name:     "wrapped lifecycle error",
			err:      Wrap(CodeInvalidLifecycleTransition, "resume while running", errors.New("bad state")),
			expected: true,
		},
		{
			name:     "other error",
			err:      ErrDependencyViolation,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsInvalidLifecycleTransition(tt.err))
		})
	}
}

func TestIsInvalidConfiguration(t *testing.T) {
	assert.True(t, IsInvalidConfiguration(ErrInvalidConfiguration))
	assert.False(t, IsInvalidConfiguration(ErrInvalidLifecycleTransition))
}

func TestIsDependencyViolation(t *testing.T) {
	assert.True(t, IsDependencyViolation(ErrDependencyViolation))
	assert.False(t, IsDependencyViolation(ErrInvalidLifecycleTransition))
}

func TestIsWorkerInitFailure(t *testing.T) {
	assert.True(t, IsWorkerInitFailure(ErrWorkerInitFailure))
	assert.False(t, IsWorkerInitFailure(ErrInvalidLifecycleTransition))
}

func TestIsMergerMismatch(t *testing.T) {
	assert.True(t, IsMergerMismatch(ErrMergerMismatch))
	assert.False(t, IsMergerMismatch(ErrBackendError))
}

func TestIsBackendError(t *testing.T) {
	assert.True(t, IsBackendError(ErrBackendError))
	assert.False(t, IsBackendError(ErrMergerMismatch))
}

func TestGetErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "app error",
			err:      New(CodeInvalidConfiguration, "bad config"),
			expected: CodeInvalidConfiguration,
		},
		{
			name:     "wrapped app error",
			err:      Wrap(CodeBackendError, "boom", errors.New("inner")),
			expected: CodeBackendError,
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
			err:      New(CodeInvalidConfiguration, "worker count must be positive"),
			expected: "worker count must be positive",
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
