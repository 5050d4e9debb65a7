package workflow

import (
	"context"
	"errors"
)

// ErrNothingToDo ends a run early without counting as a failure. The run is
// recorded with status noop and is not retried.
var ErrNothingToDo = errors.New("nothing to do")

// NonRetriableError marks an error that fails the run immediately instead
// of scheduling another attempt.
type NonRetriableError struct {
	Err error
}

func (e *NonRetriableError) Error() string {
	return "non-retriable: " + e.Err.Error()
}

func (e *NonRetriableError) Unwrap() error {
	return e.Err
}

// NonRetriable wraps err so the scheduler does not retry it.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetriableError{Err: err}
}

// IsNothingToDo reports whether err signals an empty run.
func IsNothingToDo(err error) bool {
	return errors.Is(err, ErrNothingToDo)
}

// IsRetryable reports whether a failed run should be attempted again.
// Nothing-to-do, non-retriable and context errors are final.
func IsRetryable(err error) bool {
	if err == nil || IsNothingToDo(err) {
		return false
	}
	var nr *NonRetriableError
	if errors.As(err, &nr) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
