// Package errors defines the error taxonomy surfaced by the training core.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the training core, per the lifecycle/attach/merge error
// taxonomy.
const (
	CodeUnknown                    = "UNKNOWN_ERROR"
	CodeInvalidLifecycleTransition = "INVALID_LIFECYCLE_TRANSITION"
	CodeInvalidConfiguration       = "INVALID_CONFIGURATION"
	CodeDependencyViolation        = "DEPENDENCY_VIOLATION"
	CodeWorkerInitFailure          = "WORKER_INIT_FAILURE"
	CodeMergerMismatch             = "MERGER_MISMATCH"
	CodeBackendError               = "BACKEND_ERROR"
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

// Is checks if the error matches the target by code.
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

// Sentinel instances, one per taxonomy entry in the spec's error handling design.
var (
	// ErrInvalidLifecycleTransition: a control method was called in a state
	// that does not admit it (e.g. signalResume while Running).
	ErrInvalidLifecycleTransition = New(CodeInvalidLifecycleTransition, "invalid lifecycle transition")
	// ErrInvalidConfiguration: workerCount <= 0, nil handler, unknown hook,
	// or a required hook missing after validation.
	ErrInvalidConfiguration = New(CodeInvalidConfiguration, "invalid configuration")
	// ErrDependencyViolation: detaching a hook with live dependents, or a
	// required-hook cycle detected at attach time.
	ErrDependencyViolation = New(CodeDependencyViolation, "dependency violation")
	// ErrWorkerInitFailure: the data iterator produced no yield for a worker.
	ErrWorkerInitFailure = New(CodeWorkerInitFailure, "worker initialisation failure")
	// ErrMergerMismatch: a worker pushed more replicas than workerCount allows.
	ErrMergerMismatch = New(CodeMergerMismatch, "merger mismatch")
	// ErrBackendError: an error propagated from the tensor/computation handler.
	ErrBackendError = New(CodeBackendError, "backend error")
)

// IsInvalidLifecycleTransition reports whether err is an invalid-transition error.
func IsInvalidLifecycleTransition(err error) bool {
	return errors.Is(err, ErrInvalidLifecycleTransition)
}

// IsInvalidConfiguration reports whether err is an invalid-configuration error.
func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsDependencyViolation reports whether err is a dependency-violation error.
func IsDependencyViolation(err error) bool {
	return errors.Is(err, ErrDependencyViolation)
}

// IsWorkerInitFailure reports whether err is a worker-initialisation error.
func IsWorkerInitFailure(err error) bool {
	return errors.Is(err, ErrWorkerInitFailure)
}

// IsMergerMismatch reports whether err is a merger-mismatch error.
func IsMergerMismatch(err error) bool {
	return errors.Is(err, ErrMergerMismatch)
}

// IsBackendError reports whether err is a backend error.
func IsBackendError(err error) bool {
	return errors.Is(err, ErrBackendError)
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
