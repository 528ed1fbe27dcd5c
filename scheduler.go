package asap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-asap/core"
	"github.com/Swind/go-asap/eventloop"
)

var (
	// ErrNotInitialized is returned by package-level helpers before
	// InitGlobalScheduler.
	ErrNotInitialized = errors.New("asap: global scheduler not initialized")

	// ErrLoopNotRunning is returned by WaitIdle on a loop that is stepped
	// manually.
	ErrLoopNotRunning = errors.New("asap: loop is not running on its own goroutine")
)

const (
	// statsTimeout bounds how long Stats waits for the loop to answer.
	statsTimeout = time.Second

	// idlePollInterval is how often WaitIdle re-checks a queue still waiting
	// for its flush.
	idlePollInterval = time.Millisecond
)

// Scheduler binds a SafeScheduler to the event loop that owns it.
//
// The SafeScheduler itself must only be touched from the loop's context.
// Scheduler takes care of that: calls made on the loop goroutine (or on a loop
// stepped manually by the caller) go straight through, calls from any other
// goroutine hop onto the loop with Post.
type Scheduler struct {
	loop *eventloop.Loop
	safe *core.SafeScheduler

	statsMu   sync.Mutex
	lastStats core.SchedulerStats
}

// New creates a Scheduler on loop with the default config.
func New(loop *eventloop.Loop) *Scheduler {
	return NewWithConfig(loop, core.DefaultSchedulerConfig())
}

// NewWithConfig creates a Scheduler on loop. Unset and invalid config values
// fall back to their defaults; call config.Validate first to reject them.
func NewWithConfig(loop *eventloop.Loop, config *core.SchedulerConfig) *Scheduler {
	s := &Scheduler{
		loop: loop,
		safe: core.NewSafeSchedulerWithConfig(loop.Host(), config),
	}
	s.lastStats = s.safe.Stats()
	return s
}

// Loop returns the loop the scheduler runs on.
func (s *Scheduler) Loop() *eventloop.Loop {
	return s.loop
}

// Core returns the underlying SafeScheduler. It may only be used from the
// loop's context.
func (s *Scheduler) Core() *core.SafeScheduler {
	return s.safe
}

// direct reports whether the caller may touch the SafeScheduler without a hop.
func (s *Scheduler) direct() bool {
	return !s.loop.Running() || s.loop.InLoop()
}

// do runs fn in the loop's context.
func (s *Scheduler) do(fn func()) error {
	if s.loop.IsClosed() {
		return eventloop.ErrLoopClosed
	}
	if s.direct() {
		fn()
		return nil
	}
	return s.loop.Post(fn)
}

// Schedule queues task to run as soon as possible on the loop.
// It returns ErrLoopClosed once the loop has been stopped.
func (s *Scheduler) Schedule(task core.Task) error {
	return s.do(func() { s.safe.Schedule(task) })
}

// ScheduleFunc is Schedule for a plain function.
func (s *Scheduler) ScheduleFunc(fn func()) error {
	if fn == nil {
		return s.Schedule(nil)
	}
	return s.Schedule(core.TaskFunc(fn))
}

// SetTaskErrorHook installs fn as the receiver of task errors in place of the
// deferred re-throw. Intended for tests; nil restores the default.
func (s *Scheduler) SetTaskErrorHook(fn func(error)) error {
	return s.do(func() { s.safe.SetTaskErrorHook(fn) })
}

// Stats returns a snapshot of the scheduler. From outside the loop it waits for
// the loop to answer, and falls back to the last snapshot after statsTimeout.
func (s *Scheduler) Stats() core.SchedulerStats {
	if s.direct() {
		stats := s.safe.Stats()
		s.storeStats(stats)
		return stats
	}

	ch := make(chan core.SchedulerStats, 1)
	if err := s.loop.Post(func() { ch <- s.safe.Stats() }); err == nil {
		select {
		case stats := <-ch:
			s.storeStats(stats)
			return stats
		case <-time.After(statsTimeout):
		}
	}

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.lastStats
}

func (s *Scheduler) storeStats(stats core.SchedulerStats) {
	s.statsMu.Lock()
	s.lastStats = stats
	s.statsMu.Unlock()
}

// WaitIdle blocks until every task scheduled before the call has run and the
// scheduler queue is drained. It needs a loop running on its own goroutine and
// returns ErrLoopNotRunning otherwise; a manually stepped loop is drained with
// RunUntilIdle or Advance instead.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	if s.loop.IsClosed() {
		return eventloop.ErrLoopClosed
	}
	if !s.loop.Running() {
		return ErrLoopNotRunning
	}

	// Lets pending hops schedule their tasks.
	if err := s.loop.WaitIdle(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	var stop atomic.Bool
	var check func()
	check = func() {
		if stop.Load() {
			return
		}
		raw := s.safe.Raw()
		if raw.Len() == 0 && !raw.Flushing() {
			close(done)
			return
		}
		// The flush may only be delivered by the fallback interval.
		s.loop.SetTimeout(check, idlePollInterval)
	}
	if err := s.loop.Post(check); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		stop.Store(true)
		return ctx.Err()
	}
}

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler creates the global scheduler on a dedicated loop and
// starts the loop. A nil config is read from the environment; any other config
// must pass Validate. Calling it again is a no-op.
func InitGlobalScheduler(config *core.SchedulerConfig) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return nil // Already initialized
	}

	if config == nil {
		cfg, err := core.LoadSchedulerConfig()
		if err != nil {
			return err
		}
		config = cfg
	} else if err := config.Validate(); err != nil {
		return err
	}

	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger(config.LogLevel)
	}
	name := config.Name
	if name == "" {
		name = "asap"
	}

	loop := eventloop.New(
		eventloop.WithName(name+"-loop"),
		eventloop.WithLogger(logger),
	)
	loop.Start()

	cfg := *config
	cfg.Logger = logger
	globalScheduler = NewWithConfig(loop, &cfg)
	return nil
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("GlobalScheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler stops the global loop. Queued tasks are dropped.
func ShutdownGlobalScheduler() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		globalScheduler.loop.Stop()
		globalScheduler = nil
	}
}

func currentGlobal() *Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalScheduler
}

// Schedule queues task on the global scheduler.
func Schedule(task core.Task) error {
	s := currentGlobal()
	if s == nil {
		return ErrNotInitialized
	}
	return s.Schedule(task)
}

// ScheduleFunc queues fn on the global scheduler.
func ScheduleFunc(fn func()) error {
	s := currentGlobal()
	if s == nil {
		return ErrNotInitialized
	}
	return s.ScheduleFunc(fn)
}
