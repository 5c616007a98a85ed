package session

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by any call on an Engine after Close.
var ErrClosed = errors.New("session closed")

// initializationError: model, context or sampler construction failed. Fatal;
// the caller discards the session and may retry with another model.
type initializationError struct {
	stage string
	err   error
}

func (e initializationError) Error() string {
	return "initialize session: " + e.stage + ": " + e.err.Error()
}
func (e initializationError) Unwrap() error { return e.err }

// IsInitialization reports whether err came from session construction.
func IsInitialization(err error) bool {
	var ie initializationError
	return errors.As(err, &ie)
}

// tokenizationError aborts the current call only.
type tokenizationError struct{ err error }

func (e tokenizationError) Error() string { return "tokenize: " + e.err.Error() }
func (e tokenizationError) Unwrap() error { return e.err }

// IsTokenization reports whether err is a recoverable tokenization failure.
func IsTokenization(err error) bool {
	var te tokenizationError
	return errors.As(err, &te)
}

// evaluationError: the backend failed to evaluate or evict. Fatal; the
// engine refuses further work until it is discarded.
type evaluationError struct {
	op  string
	pos int
	err error
}

func (e evaluationError) Error() string {
	return fmt.Sprintf("backend %s failed at position %d: %v", e.op, e.pos, e.err)
}
func (e evaluationError) Unwrap() error { return e.err }

// IsEvaluation reports whether err is a fatal backend evaluation failure.
func IsEvaluation(err error) bool {
	var ee evaluationError
	return errors.As(err, &ee)
}

// contextOverflowError: eviction down to the floor still cannot make room.
type contextOverflowError struct {
	pos      int
	needed   int
	capacity int
	minKeep  int
}

func (e contextOverflowError) Error() string {
	return fmt.Sprintf("context overflow: %d resident + %d needed exceeds capacity %d with min keep %d",
		e.pos, e.needed, e.capacity, e.minKeep)
}

// IsContextOverflow reports whether err means the turn cannot fit.
func IsContextOverflow(err error) bool {
	var ce contextOverflowError
	return errors.As(err, &ce)
}

// templateError: applying the chat template failed. Recoverable; the caller
// may disable the template and retry with static formatting.
type templateError struct{ err error }

func (e templateError) Error() string { return "apply chat template: " + e.err.Error() }
func (e templateError) Unwrap() error { return e.err }

// IsTemplateApplication reports whether err came from the chat template.
func IsTemplateApplication(err error) bool {
	var te templateError
	return errors.As(err, &te)
}
