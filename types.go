package asap

import (
	"github.com/Swind/go-asap/core"
	"github.com/Swind/go-asap/eventloop"
)

// Re-export commonly used types from the core and eventloop packages.
// This allows users to import only the asap package for most use cases.

// Task is the unit of work
type Task = core.Task

// TaskFunc adapts a plain function to Task
type TaskFunc = core.TaskFunc

// TaskError is the failure captured from a panicking task
type TaskError = core.TaskError

// SchedulerConfig configures a Scheduler
type SchedulerConfig = core.SchedulerConfig

// SchedulerStats is a snapshot of a Scheduler
type SchedulerStats = core.SchedulerStats

// Loop is the event loop hosting schedulers
type Loop = eventloop.Loop

// Convenience functions
var (
	DefaultSchedulerConfig = core.DefaultSchedulerConfig
	LoadSchedulerConfig    = core.LoadSchedulerConfig
	NewLoop                = eventloop.New
)
