package queue

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a task id is absent from the store.
	ErrNotFound = errors.New("task not found")
	// ErrExists is returned by Put when the id is already stored.
	ErrExists = errors.New("task already exists")
	// ErrInvalidTransition is returned when an update violates the lifecycle.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrStoreUnavailable marks failures of the durability layer itself.
	ErrStoreUnavailable = errors.New("task store unavailable")
)

// TransitionError describes a rejected stage change.
type TransitionError struct {
	ID   string
	From Stage
	To   Stage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: task %s cannot move from %s to %s", ErrInvalidTransition, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// unavailable marks err as a durability failure. Cancellation and deadline
// errors belong to the caller and are passed through unmarked.
func unavailable(op string, err error) error {
	if isContextError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
