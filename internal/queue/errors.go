package queue

import (
	"errors"
	"fmt"
)

// ErrIllegalTransition marks status changes the state machine forbids.
var ErrIllegalTransition = errors.New("illegal status transition")

// ErrTaskNotFound marks operations against a task id that no longer exists.
var ErrTaskNotFound = errors.New("task not found")

func illegalTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}
