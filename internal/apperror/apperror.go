// Package apperror defines the error kinds shared by the playground.
//
// Every error that crosses a package boundary is an *AppError carrying one of
// the sentinel kinds below. Callers classify with errors.Is(err, apperror.ErrX)
// and read the client-facing text with errors.As.
//
// EXECUTION KINDS:
//
//	ErrIO             workspace or file operation failed
//	ErrCompile        compiler exited non-zero or could not be launched
//	ErrSpawn          compiled program could not be started
//	ErrStreamFault    pipe read/write failed while the program was running
//	ErrTransportFault client went away or sent something unusable
//
// The remaining kinds belong to the account and snippet API.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation error")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")

	ErrIO             = errors.New("io error")
	ErrCompile        = errors.New("compile error")
	ErrSpawn          = errors.New("spawn error")
	ErrStreamFault    = errors.New("stream fault")
	ErrTransportFault = errors.New("transport fault")
)

type AppError struct {
	Err     error  // kind (one of the sentinels above)
	Message string // Human-readable error message, safe to show a client
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, key string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s already exists: %s", resource, key),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthorized is returned for missing or bad credentials.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// IOFailed wraps a filesystem failure. op is shown to the client, e.g.
// "Failed to write file".
func IOFailed(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrIO,
		Message: fmt.Sprintf("%s: %v", op, cause),
		Cause:   cause,
	}
}

// CompileFailed carries the compiler's diagnostic text unmodified.
func CompileFailed(diagnostic string, cause error) *AppError {
	return &AppError{
		Err:     ErrCompile,
		Message: diagnostic,
		Cause:   cause,
	}
}

func SpawnFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrSpawn,
		Message: fmt.Sprintf("Failed to spawn process: %v", cause),
		Cause:   cause,
	}
}

// StreamFault reports a broken pipe in one direction ("stdin", "stdout", "stderr").
func StreamFault(direction string, cause error) *AppError {
	return &AppError{
		Err:     ErrStreamFault,
		Message: fmt.Sprintf("%s stream failed: %v", direction, cause),
		Field:   direction,
		Cause:   cause,
	}
}

func TransportFault(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransportFault,
		Message: message,
		Cause:   cause,
	}
}

// Message returns the client-facing text of err. Errors that are not
// AppErrors collapse to a generic message so internals never leak.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An internal error occurred"
}
