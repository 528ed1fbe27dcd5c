package core

import "github.com/google/uuid"

// Task is the unit of work. Any value with a Call method can be scheduled.
// A task "fails" by panicking.
type Task interface {
	Call()
}

// TaskFunc adapts an ordinary function to the Task interface.
type TaskFunc func()

// Call invokes f.
func (f TaskFunc) Call() { f() }

// TaskID identifies a single binding of a task to a holder.
type TaskID uuid.UUID

// GenerateTaskID returns a new random TaskID.
func GenerateTaskID() TaskID {
	return TaskID(uuid.New())
}

func (id TaskID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id was never assigned.
func (id TaskID) IsZero() bool {
	return uuid.UUID(id) == uuid.Nil
}
