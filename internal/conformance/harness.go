package conformance

import (
	"sync"
	"time"

	"github.com/Swind/go-asap/core"
	"github.com/Swind/go-asap/eventloop"
)

// settleWindow is how far the manual clock is moved to let timer based
// requests fire. It spans several fallback intervals.
const settleWindow = 4 * core.DefaultTimerInterval

// harness is a manually stepped loop set up for one environment.
type harness struct {
	env     Environment
	loop    *eventloop.Loop
	clock   *eventloop.ManualClock
	metrics *countingMetrics
	crashes *crashReporter
}

func newHarness(env Environment) *harness {
	h := &harness{
		env:     env,
		clock:   eventloop.NewManualClock(time.Unix(0, 0)),
		metrics: &countingMetrics{},
		crashes: &crashReporter{},
	}

	opts := []eventloop.Option{
		eventloop.WithName(env.Name),
		eventloop.WithClock(h.clock),
		eventloop.WithLogger(core.NewNoOpLogger()),
		eventloop.WithPanicHandler(h.crashes),
	}
	if !env.Observer {
		opts = append(opts, eventloop.WithoutChangeObserver())
	}
	if env.DropZeroDelay {
		opts = append(opts, eventloop.WithZeroDelayTimerDrop())
	}
	h.loop = eventloop.New(opts...)
	return h
}

func (h *harness) config() *core.SchedulerConfig {
	return &core.SchedulerConfig{
		Name:     h.env.Name,
		Capacity: h.env.Capacity,
		Logger:   core.NewNoOpLogger(),
		Metrics:  h.metrics,
	}
}

func (h *harness) capacity() int {
	if h.env.Capacity > 0 {
		return h.env.Capacity
	}
	return core.DefaultCapacity
}

func (h *harness) raw() *core.RawScheduler {
	return core.NewRawSchedulerWithConfig(h.loop.Host(), h.config())
}

func (h *harness) safe() *core.SafeScheduler {
	return core.NewSafeSchedulerWithConfig(h.loop.Host(), h.config())
}

// settle runs the loop until every pending request, including timer based
// ones, has been delivered.
func (h *harness) settle() {
	h.loop.Advance(settleWindow)
}

// crashReporter collects uncaught errors, the host's view of failures.
type crashReporter struct {
	mu     sync.Mutex
	values []any
}

func (c *crashReporter) HandlePanic(loopName string, panicInfo any, stackTrace []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, panicInfo)
}

// taskValues returns the panic values of the reported task errors, in report
// order.
func (c *crashReporter) taskValues() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, 0, len(c.values))
	for _, v := range c.values {
		if err, ok := v.(*core.TaskError); ok {
			out = append(out, err.Value)
		} else {
			out = append(out, v)
		}
	}
	return out
}

// countingMetrics counts host requests and compactions.
type countingMetrics struct {
	core.NilMetrics
	requests    int
	compactions int
}

func (m *countingMetrics) RecordFlushRequested(string, core.Strategy) {
	m.requests++
}

func (m *countingMetrics) RecordCompaction(string, int) {
	m.compactions++
}
