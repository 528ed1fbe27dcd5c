package core

import "time"

// RawScheduler runs tasks at the host's earliest high-priority turn.
//
// Tasks run in FIFO order. A task scheduled while the queue is being flushed
// runs in the same flush, after every task that was already pending. RawScheduler
// does not recover panics: a panicking task unwinds out of the flush into the
// host. The cursor is advanced before each call, so a later flush resumes at
// the next task, but nothing re-arms the host on its own; call RequestFlush or
// use SafeScheduler.
//
// A RawScheduler is owned by a single execution context (the host loop) and
// must not be used concurrently.
type RawScheduler struct {
	queue    []Task
	index    int
	capacity int
	flushing bool

	// depth of flush frames on the stack
	inFlush int

	requestFlush RequestFunc
	strategy     Strategy
	timers       Timers

	name    string
	logger  Logger
	metrics Metrics

	compactions int64
	executed    int64
}

// NewRawScheduler creates a RawScheduler on host with the default config.
func NewRawScheduler(host Timers) *RawScheduler {
	return NewRawSchedulerWithConfig(host, DefaultSchedulerConfig())
}

// NewRawSchedulerWithConfig creates a RawScheduler on host. The host is probed
// once: when it also implements ChangeObserver (and ForceTimer is unset) the
// observer strategy is used, otherwise the timer strategy. The choice is fixed
// for the lifetime of the scheduler.
func NewRawSchedulerWithConfig(host Timers, config *SchedulerConfig) *RawScheduler {
	cfg := config.withDefaults()
	r := &RawScheduler{
		capacity: cfg.Capacity,
		timers:   host,
		name:     cfg.Name,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}

	if obs, ok := host.(ChangeObserver); ok && !cfg.ForceTimer {
		r.strategy = StrategyObserver
		r.requestFlush = MakeRequestCallFromObserver(obs, r.flush)
	} else {
		r.strategy = StrategyTimer
		r.requestFlush = MakeRequestCallFromTimer(host, r.flush, cfg.TimerInterval)
	}

	r.logger.Debug("request strategy selected",
		F("scheduler", r.name),
		F("strategy", r.strategy.String()),
		F("capacity", r.capacity),
	)
	return r
}

// ScheduleRaw appends task to the queue. The first task queued into an empty
// queue asks the host for a flush. A nil task is dropped.
func (r *RawScheduler) ScheduleRaw(task Task) {
	if task == nil {
		r.logger.Warn("nil task dropped", F("scheduler", r.name))
		return
	}

	if len(r.queue) == 0 {
		r.RequestFlush()
		r.flushing = true
	}
	r.queue = append(r.queue, task)
}

// RequestFlush asks the host for a future flush. Raw callers use it to resume a
// queue after a task panicked out of a flush.
func (r *RawScheduler) RequestFlush() {
	r.metrics.RecordFlushRequested(r.name, r.strategy)
	r.requestFlush()
}

// flush is delivered by the host. It drains the queue unless a task panics.
func (r *RawScheduler) flush() {
	// A nested delivery would only duplicate the work of the outer frame.
	if r.inFlush > 0 {
		return
	}
	r.inFlush++

	start := time.Now()
	invoked := 0
	defer func() {
		r.inFlush--
		r.executed += int64(invoked)
		r.metrics.RecordFlush(r.name, invoked, time.Since(start))
		r.metrics.RecordQueueDepth(r.name, r.Len())
	}()

	for r.index < len(r.queue) {
		current := r.index
		// Advance first: a panicking task must not run again on resume.
		r.index++
		invoked++
		r.queue[current].Call()

		if r.index > r.capacity {
			r.compact()
		}
	}

	clear(r.queue)
	r.queue = r.queue[:0]
	r.index = 0
	r.flushing = false
}

// compact moves the pending tail to the front of the storage and releases the
// consumed slots.
func (r *RawScheduler) compact() {
	reclaimed := r.index
	n := copy(r.queue, r.queue[r.index:])
	clear(r.queue[n:])
	r.queue = r.queue[:n]
	r.index = 0

	r.compactions++
	r.metrics.RecordCompaction(r.name, reclaimed)
	r.logger.Debug("queue compacted",
		F("scheduler", r.name),
		F("reclaimed", reclaimed),
		F("pending", n),
	)
}

// Len returns the number of pending tasks.
func (r *RawScheduler) Len() int {
	return len(r.queue) - r.index
}

// StorageLen returns the length of the queue storage including slots already
// consumed by the current flush.
func (r *RawScheduler) StorageLen() int {
	return len(r.queue)
}

// Cursor returns the index of the next task to invoke.
func (r *RawScheduler) Cursor() int {
	return r.index
}

// Flushing reports whether a flush has been requested and the queue has not
// drained since.
func (r *RawScheduler) Flushing() bool {
	return r.flushing
}

// Capacity returns the compaction threshold.
func (r *RawScheduler) Capacity() int {
	return r.capacity
}

// Strategy returns the request strategy chosen at construction.
func (r *RawScheduler) Strategy() Strategy {
	return r.strategy
}

// Name returns the scheduler name.
func (r *RawScheduler) Name() string {
	return r.name
}

// Stats returns a snapshot of the scheduler state.
func (r *RawScheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Name:        r.name,
		Strategy:    r.strategy,
		Pending:     r.Len(),
		StorageLen:  len(r.queue),
		Cursor:      r.index,
		Flushing:    r.flushing,
		Compactions: r.compactions,
		Executed:    r.executed,
	}
}
