package core

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Name     string
	Strategy Strategy
	// Pending is the number of queued tasks not yet invoked.
	Pending int
	// StorageLen is the length of the queue storage, consumed slots included.
	StorageLen  int
	Cursor      int
	Flushing    bool
	Compactions int64
	Executed    int64
	// Safe layer only.
	FreeHolders   int
	PendingErrors int
	TaskErrors    int64
}

// LoopStats represents runtime observability state for a host loop.
type LoopStats struct {
	Name       string
	Posted     int
	Microtasks int
	Timers     int
	Turns      uint64
	Uncaught   int64
	Running    bool
	Closed     bool
}
