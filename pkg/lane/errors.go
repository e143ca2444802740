package lane

import (
	"errors"
	"fmt"
)

// LaneFullError is returned when a key already has the maximum number of
// waiting submissions.
type LaneFullError struct {
	Key      string
	Capacity int
}

func (e *LaneFullError) Error() string {
	return fmt.Sprintf("lane %s is full (capacity: %d)", e.Key, e.Capacity)
}

// LaneClosedError is returned when submitting to a closed lane.
type LaneClosedError struct {
	Name string
}

func (e *LaneClosedError) Error() string {
	return fmt.Sprintf("lane %s is closed", e.Name)
}

// TaskPanicError wraps a panic raised by a submitted function.
type TaskPanicError struct {
	Key   string
	Value any
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task on key %s panicked: %v", e.Key, e.Value)
}

// IsLaneFullError reports whether err is a LaneFullError.
func IsLaneFullError(err error) bool {
	var target *LaneFullError
	return errors.As(err, &target)
}

// IsLaneClosedError reports whether err is a LaneClosedError.
func IsLaneClosedError(err error) bool {
	var target *LaneClosedError
	return errors.As(err, &target)
}
