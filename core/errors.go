package core

import (
	"errors"
	"fmt"
)

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed
	// into a SchedulerConfig.
	ErrParsingConfig = errors.New("asap: failed to parse config")

	// ErrInvalidCapacity is returned by SchedulerConfig.Validate for a negative
	// compaction threshold.
	ErrInvalidCapacity = errors.New("asap: capacity must not be negative")

	// ErrInvalidTimerInterval is returned by SchedulerConfig.Validate for a
	// negative fallback interval.
	ErrInvalidTimerInterval = errors.New("asap: timer interval must not be negative")
)

// TaskError is a panic recovered from a task scheduled on a SafeScheduler.
type TaskError struct {
	TaskID TaskID
	// Value is the value the task panicked with.
	Value any
	// Stack is the goroutine stack captured where the panic was recovered.
	Stack []byte
}

func (e *TaskError) Error() string {
	if err, ok := e.Value.(error); ok {
		return fmt.Sprintf("asap: task %s failed: %v", e.TaskID, err)
	}
	return fmt.Sprintf("asap: task %s panicked: %v", e.TaskID, e.Value)
}

// Unwrap returns the panic value when it is an error, so errors.Is and
// errors.As see through the TaskError.
func (e *TaskError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
