package core

import "runtime/debug"

// SafeScheduler schedules tasks on a RawScheduler and isolates their failures.
//
// A task that panics never stops the tasks queued after it. The panic is
// captured as a *TaskError and re-thrown on a later low-priority timer turn of
// the host, one error per turn, in the order the failures happened. The host
// therefore still observes every failure as an uncaught error.
//
// Like RawScheduler, a SafeScheduler belongs to a single execution context.
type SafeScheduler struct {
	raw *RawScheduler

	// holders ready for reuse
	freeTasks []*taskHolder

	pendingErrors     []*TaskError
	requestErrorThrow RequestFunc

	onError func(error)

	name       string
	logger     Logger
	metrics    Metrics
	taskErrors int64
}

// NewSafeScheduler creates a SafeScheduler on host with the default config.
func NewSafeScheduler(host Timers) *SafeScheduler {
	return NewSafeSchedulerWithConfig(host, DefaultSchedulerConfig())
}

// NewSafeSchedulerWithConfig creates a SafeScheduler on host.
func NewSafeSchedulerWithConfig(host Timers, config *SchedulerConfig) *SafeScheduler {
	cfg := config.withDefaults()
	s := &SafeScheduler{
		raw:     NewRawSchedulerWithConfig(host, &cfg),
		name:    cfg.Name,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
	// Re-throws always go through timers so a burst of failures cannot
	// starve the high-priority lane.
	s.requestErrorThrow = MakeRequestCallFromTimer(host, s.throwFirstError, cfg.TimerInterval)
	return s
}

// Schedule queues task for the next high-priority turn. task runs at most
// once; if it panics the failure is captured instead of propagated.
func (s *SafeScheduler) Schedule(task Task) {
	if task == nil {
		s.logger.Warn("nil task dropped", F("scheduler", s.name))
		return
	}

	var holder *taskHolder
	if n := len(s.freeTasks); n > 0 {
		holder = s.freeTasks[n-1]
		s.freeTasks[n-1] = nil
		s.freeTasks = s.freeTasks[:n-1]
	} else {
		holder = &taskHolder{owner: s}
	}
	holder.task = task
	s.raw.ScheduleRaw(holder)
}

// ScheduleFunc is Schedule for a plain function.
func (s *SafeScheduler) ScheduleFunc(fn func()) {
	if fn == nil {
		s.Schedule(nil)
		return
	}
	s.Schedule(TaskFunc(fn))
}

// SetTaskErrorHook installs fn to receive task failures instead of the
// deferred re-throw. It exists for test harnesses; production code should
// let failures surface through the host.
func (s *SafeScheduler) SetTaskErrorHook(fn func(error)) {
	s.onError = fn
}

func (s *SafeScheduler) captureTaskError(err *TaskError) {
	s.taskErrors++
	s.metrics.RecordTaskError(s.name)
	s.logger.Debug("task failed",
		F("scheduler", s.name),
		F("task_id", err.TaskID.String()),
		F("error", err),
	)

	if s.onError != nil {
		s.onError(err)
		return
	}
	s.pendingErrors = append(s.pendingErrors, err)
	s.requestErrorThrow()
}

// throwFirstError runs on a low-priority turn and panics with the oldest
// captured failure.
func (s *SafeScheduler) throwFirstError() {
	if len(s.pendingErrors) == 0 {
		return
	}
	err := s.pendingErrors[0]
	s.pendingErrors[0] = nil
	s.pendingErrors = s.pendingErrors[1:]
	if len(s.pendingErrors) == 0 {
		s.pendingErrors = nil
	}

	s.metrics.RecordErrorRethrown(s.name)
	s.logger.Debug("re-throwing task failure",
		F("scheduler", s.name),
		F("task_id", err.TaskID.String()),
	)
	panic(err)
}

// Raw returns the underlying RawScheduler.
func (s *SafeScheduler) Raw() *RawScheduler {
	return s.raw
}

// FreeHolders returns the number of holders waiting for reuse.
func (s *SafeScheduler) FreeHolders() int {
	return len(s.freeTasks)
}

// PendingErrors returns the number of captured failures not yet re-thrown.
func (s *SafeScheduler) PendingErrors() int {
	return len(s.pendingErrors)
}

// Stats returns a snapshot of the scheduler state.
func (s *SafeScheduler) Stats() SchedulerStats {
	stats := s.raw.Stats()
	stats.FreeHolders = len(s.freeTasks)
	stats.PendingErrors = len(s.pendingErrors)
	stats.TaskErrors = s.taskErrors
	return stats
}

// =============================================================================
// taskHolder
// =============================================================================

// taskHolder binds one task at a time and returns itself to its owner's free
// pool after the call, whatever the outcome.
type taskHolder struct {
	owner *SafeScheduler
	task  Task
}

func (h *taskHolder) Call() {
	defer h.release()
	defer func() {
		if rec := recover(); rec != nil {
			h.owner.captureTaskError(&TaskError{
				// ids are only needed by failures
				TaskID: GenerateTaskID(),
				Value:  rec,
				Stack:  debug.Stack(),
			})
		}
	}()
	h.task.Call()
}

// release runs even when the error hook itself panics.
func (h *taskHolder) release() {
	h.task = nil
	h.owner.freeTasks = append(h.owner.freeTasks, h)
}
