package eventloop

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-asap/core"
)

var (
	// ErrLoopClosed is returned when work is posted to a stopped loop.
	ErrLoopClosed = errors.New("eventloop: loop is closed")

	// ErrLoopRunning is raised when a loop running on its own goroutine is
	// stepped manually.
	ErrLoopRunning = errors.New("eventloop: loop is running on its own goroutine")
)

// Loop is a single-context event loop that hosts schedulers.
//
// Every turn the loop runs, in this order:
//  1. the high-priority lane (microtasks and change observer deliveries),
//  2. expired timers, one low-priority turn each,
//  3. callbacks posted from other goroutines.
//
// The high-priority lane is drained after every callback of steps 2 and 3.
// Callbacks never run concurrently. A callback that panics is recovered at the
// turn boundary and reported to the PanicHandler as an uncaught error.
//
// The loop either runs on a dedicated goroutine (Start/Stop) or is stepped by
// the caller (RunUntilIdle/Advance), typically with a ManualClock in tests.
// Post, QueueMicrotask and the timer and observer methods are safe to call
// from any goroutine.
type Loop struct {
	name            string
	clock           Clock
	logger          core.Logger
	panicHandler    core.PanicHandler
	observerEnabled bool
	dropZeroDelay   bool

	mu          sync.Mutex
	posted      *funcQueue
	microtasks  *funcQueue
	timers      timerHeap
	timerIndex  map[core.TimerID]*timer
	nextTimerID core.TimerID
	timerSeq    uint64

	wakeup chan struct{}

	turns    atomic.Uint64
	uncaught atomic.Int64

	// Lifecycle control
	ctx             context.Context
	cancel          context.CancelFunc
	stopped         chan struct{}
	started         atomic.Bool
	closed          atomic.Bool
	stopOnce        sync.Once
	stepping        atomic.Bool
	loopGoroutineID atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithName sets the loop name used in logs and stats.
func WithName(name string) Option {
	return func(l *Loop) { l.name = name }
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(l *Loop) { l.clock = clock }
}

// WithLogger sets the logger used by the loop and its default panic handler.
func WithLogger(logger core.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithPanicHandler sets the uncaught error reporter.
func WithPanicHandler(h core.PanicHandler) Option {
	return func(l *Loop) { l.panicHandler = h }
}

// WithoutChangeObserver makes Host hide the change observer facility, so
// schedulers built on it fall back to timers.
func WithoutChangeObserver() Option {
	return func(l *Loop) { l.observerEnabled = false }
}

// WithZeroDelayTimerDrop makes the loop silently drop zero-delay timeouts, as
// some worker-like hosts do.
func WithZeroDelayTimerDrop() Option {
	return func(l *Loop) { l.dropZeroDelay = true }
}

// New creates a stopped loop.
func New(opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		name:            "loop",
		clock:           realClock{},
		observerEnabled: true,
		posted:          newFuncQueue(),
		microtasks:      newFuncQueue(),
		timers:          make(timerHeap, 0),
		timerIndex:      make(map[core.TimerID]*timer),
		wakeup:          make(chan struct{}, 1),
		ctx:             ctx,
		cancel:          cancel,
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = core.NewDefaultLogger("info")
	}
	if l.panicHandler == nil {
		l.panicHandler = core.NewDefaultPanicHandler(l.logger)
	}
	return l
}

// Name returns the name of the loop
func (l *Loop) Name() string {
	return l.name
}

// Start spawns the dedicated goroutine. Repeated calls are no-ops.
func (l *Loop) Start() {
	if l.closed.Load() || !l.started.CompareAndSwap(false, true) {
		return
	}
	go l.runLoop()
}

// Stop terminates the loop and releases queued callbacks. A callback that is
// running completes first. Stop must not be called from the loop itself.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.closed.Store(true)
		l.cancel()
		if l.started.Load() {
			<-l.stopped
		}

		l.mu.Lock()
		l.posted.reset()
		l.microtasks.reset()
		l.timers = make(timerHeap, 0)
		l.timerIndex = make(map[core.TimerID]*timer)
		l.mu.Unlock()
	})
}

// IsClosed returns true if the loop has been stopped
func (l *Loop) IsClosed() bool {
	return l.closed.Load()
}

// Running reports whether the loop runs on its own goroutine.
func (l *Loop) Running() bool {
	return l.started.Load() && !l.closed.Load()
}

// InLoop reports whether the caller is the goroutine currently executing the
// loop's callbacks.
func (l *Loop) InLoop() bool {
	id := l.loopGoroutineID.Load()
	return id != 0 && id == goroutineID()
}

// Post queues fn to run on the loop. Safe to call from any goroutine.
func (l *Loop) Post(fn func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if fn == nil {
		return nil
	}
	l.mu.Lock()
	l.posted.push(fn)
	l.mu.Unlock()
	l.wake()
	return nil
}

// WaitIdle blocks until every callback posted before the call has run.
// This is implemented by posting a barrier callback and waiting for it.
func (l *Loop) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	if err := l.Post(func() { close(done) }); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) wake() {
	select {
	case l.wakeup <- struct{}{}:
	default:
	}
}

// runLoop is the core of this loop, it occupies a dedicated goroutine
func (l *Loop) runLoop() {
	defer close(l.stopped)
	l.loopGoroutineID.Store(goroutineID())
	defer l.loopGoroutineID.Store(0)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		if l.ctx.Err() != nil {
			return
		}
		if l.runTurn() {
			continue
		}

		if deadline, ok := l.nextDeadline(); ok {
			timer.Reset(max(deadline.Sub(l.clock.Now()), 0))
		}

		select {
		case <-l.ctx.Done():
			return
		case <-l.wakeup:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// RunUntilIdle runs turns on the calling goroutine until nothing is runnable
// at the current clock time, and returns the number of turns run. It panics
// with ErrLoopRunning if the loop was started.
func (l *Loop) RunUntilIdle() int {
	if l.started.Load() {
		panic(ErrLoopRunning)
	}
	if !l.stepping.CompareAndSwap(false, true) {
		// nested call from a callback: the outer call keeps going
		return 0
	}
	l.loopGoroutineID.Store(goroutineID())
	defer func() {
		l.loopGoroutineID.Store(0)
		l.stepping.Store(false)
	}()

	turns := 0
	for !l.closed.Load() && l.runTurn() {
		turns++
	}
	return turns
}

// Advance moves a ManualClock forward by d, running every timer at its own
// deadline on the way. It returns the number of turns run. Loops on any other
// clock just run until idle.
func (l *Loop) Advance(d time.Duration) int {
	clock, ok := l.clock.(*ManualClock)
	if !ok {
		return l.RunUntilIdle()
	}

	target := clock.Now().Add(d)
	turns := l.RunUntilIdle()
	for {
		deadline, ok := l.nextDeadline()
		if !ok || deadline.After(target) {
			break
		}
		clock.Set(deadline)
		turns += l.RunUntilIdle()
	}
	clock.Set(target)
	return turns + l.RunUntilIdle()
}

// runTurn runs one turn and reports whether any callback ran.
func (l *Loop) runTurn() bool {
	ran := l.drainMicrotasks()

	now := l.clock.Now()
	l.mu.Lock()
	maxSeq := l.timerSeq
	l.mu.Unlock()
	for {
		t, ok := l.popExpiredTimer(now, maxSeq)
		if !ok {
			break
		}
		l.safeExecute(t.fn)
		l.drainMicrotasks()
		ran = true
	}

	l.mu.Lock()
	batch := l.posted.drain()
	l.mu.Unlock()
	for _, fn := range batch {
		l.safeExecute(fn)
		l.drainMicrotasks()
		ran = true
	}

	if ran {
		l.turns.Add(1)
	}
	return ran
}

// drainMicrotasks runs the high-priority lane until it is empty.
func (l *Loop) drainMicrotasks() bool {
	ran := false
	for {
		l.mu.Lock()
		fn, ok := l.microtasks.pop()
		l.mu.Unlock()
		if !ok {
			return ran
		}
		l.safeExecute(fn)
		ran = true
	}
}

// safeExecute executes a callback with panic recovery.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.uncaught.Add(1)
			l.panicHandler.HandlePanic(l.name, rec, debug.Stack())
		}
	}()
	fn()
}

// Stats returns a snapshot of the loop state.
func (l *Loop) Stats() core.LoopStats {
	l.mu.Lock()
	posted := l.posted.len()
	microtasks := l.microtasks.len()
	timers := len(l.timers)
	l.mu.Unlock()

	return core.LoopStats{
		Name:       l.name,
		Posted:     posted,
		Microtasks: microtasks,
		Timers:     timers,
		Turns:      l.turns.Load(),
		Uncaught:   l.uncaught.Load(),
		Running:    l.Running(),
		Closed:     l.closed.Load(),
	}
}

// goroutineID parses the id out of "goroutine 123 [running]:".
func goroutineID() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	var id uint64
	for i := len("goroutine "); i < len(b); i++ {
		if b[i] >= '0' && b[i] <= '9' {
			id = id*10 + uint64(b[i]-'0')
		} else {
			break
		}
	}
	return id
}
