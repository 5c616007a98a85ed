package manager

import (
	"errors"

	"chatcore/internal/backend"
)

// tooBusyError signals queue timeout/overflow for 429 mapping.
type tooBusyError struct{}

func (tooBusyError) Error() string { return "too busy: generation queue full" }

// ErrTooBusy constructs a tooBusyError.
func ErrTooBusy() error { return tooBusyError{} }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}

// modelNotFoundError is returned when a requested model file is not in the
// models directory.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model.
func IsModelNotFound(err error) bool {
	var nf modelNotFoundError
	return errors.As(err, &nf)
}

// noModelError: a generation was requested with no session loaded.
type noModelError struct{ reason string }

func (e noModelError) Error() string {
	if e.reason == "" {
		return "no model loaded"
	}
	return "no model loaded: " + e.reason
}

// ErrNoModel constructs a noModelError; reason may be empty.
func ErrNoModel(reason string) error { return noModelError{reason: reason} }

// IsNoModel reports whether err means no session is available (return 503).
func IsNoModel(err error) bool {
	var nm noModelError
	return errors.As(err, &nm)
}

// IsDependencyUnavailable reports whether the native runtime is missing.
func IsDependencyUnavailable(err error) bool { return backend.IsDependencyUnavailable(err) }

// invalidArgumentError rejects malformed caller input (return 400).
type invalidArgumentError struct{ msg string }

func (e invalidArgumentError) Error() string { return e.msg }

// IsInvalidArgument reports whether err came from request validation.
func IsInvalidArgument(err error) bool {
	var ia invalidArgumentError
	return errors.As(err, &ia)
}
