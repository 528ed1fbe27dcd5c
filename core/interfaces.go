package core

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// PanicHandler: Interface for handling uncaught errors of a host loop
// =============================================================================

// PanicHandler is called when a callback running on a host loop panics and
// nothing recovered it. Errors re-thrown by a SafeScheduler end up here.
//
// Implementations should be thread-safe as they may be called from several loops.
type PanicHandler interface {
	// HandlePanic is called when a loop callback panics.
	//
	// Parameters:
	// - loopName: The name of the loop where the panic occurred
	// - panicInfo: The panic value recovered from the callback
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(loopName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler logs uncaught errors. A storm of failures is throttled:
// at most burst reports pass at once, refilled every interval, and the number
// of dropped reports is attached to the next one that passes.
type DefaultPanicHandler struct {
	logger     Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

const (
	defaultPanicReportInterval = 100 * time.Millisecond
	defaultPanicReportBurst    = 20
)

// NewDefaultPanicHandler creates a rate limited handler logging to logger.
func NewDefaultPanicHandler(logger Logger) *DefaultPanicHandler {
	if logger == nil {
		logger = NewDefaultLogger("info")
	}
	return &DefaultPanicHandler{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(defaultPanicReportInterval), defaultPanicReportBurst),
	}
}

// HandlePanic logs the uncaught error unless the report budget is exhausted.
func (h *DefaultPanicHandler) HandlePanic(loopName string, panicInfo any, stackTrace []byte) {
	if !h.limiter.Allow() {
		h.suppressed.Add(1)
		return
	}

	fields := []Field{F("loop", loopName), F("panic", panicInfo)}
	if n := h.suppressed.Swap(0); n > 0 {
		fields = append(fields, F("suppressed", n))
	}
	if err, ok := panicInfo.(*TaskError); ok && len(err.Stack) > 0 {
		fields = append(fields, F("stack", string(err.Stack)))
	} else if len(stackTrace) > 0 {
		fields = append(fields, F("stack", string(stackTrace)))
	}
	h.logger.Error("uncaught error", fields...)
}

// Suppressed returns how many reports were dropped since the last logged one.
func (h *DefaultPanicHandler) Suppressed() int64 {
	return h.suppressed.Load()
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods are called from the scheduler's execution context and should be
// non-blocking and fast.
type Metrics interface {
	// RecordFlushRequested records a call to the host request primitive.
	RecordFlushRequested(schedulerName string, strategy Strategy)

	// RecordFlush records one flush pass: how many tasks it invoked and how
	// long it took. A pass interrupted by a panicking raw task is recorded too.
	RecordFlush(schedulerName string, tasks int, duration time.Duration)

	// RecordCompaction records a queue compaction and the number of consumed
	// slots it reclaimed.
	RecordCompaction(schedulerName string, reclaimed int)

	// RecordQueueDepth records the number of pending tasks.
	RecordQueueDepth(schedulerName string, depth int)

	// RecordTaskError records a task failure captured by a SafeScheduler.
	RecordTaskError(schedulerName string)

	// RecordErrorRethrown records a captured failure re-thrown on a
	// low-priority turn.
	RecordErrorRethrown(schedulerName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordFlushRequested(schedulerName string, strategy Strategy)        {}
func (m *NilMetrics) RecordFlush(schedulerName string, tasks int, duration time.Duration) {}
func (m *NilMetrics) RecordCompaction(schedulerName string, reclaimed int)                {}
func (m *NilMetrics) RecordQueueDepth(schedulerName string, depth int)                    {}
func (m *NilMetrics) RecordTaskError(schedulerName string)                                {}
func (m *NilMetrics) RecordErrorRethrown(schedulerName string)                            {}
