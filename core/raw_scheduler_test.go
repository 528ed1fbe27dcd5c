package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRawScheduler_StrategySelection verifies the one-time host probe
// Given: hosts with and without a change observer
// When: a RawScheduler is created on each
// Then: the observer strategy is picked only when available and not forced off
func TestRawScheduler_StrategySelection(t *testing.T) {
	host := newFakeHost()

	observed := NewRawSchedulerWithConfig(host, quietConfig())
	assert.Equal(t, StrategyObserver, observed.Strategy())

	timerOnly := NewRawSchedulerWithConfig(timersOnly{host}, quietConfig())
	assert.Equal(t, StrategyTimer, timerOnly.Strategy())

	cfg := quietConfig()
	cfg.ForceTimer = true
	forced := NewRawSchedulerWithConfig(host, cfg)
	assert.Equal(t, StrategyTimer, forced.Strategy())
}

// TestRawScheduler_ExecutionOrder tests FIFO execution within one flush
// Main test items:
// 1. Tasks run in the order they were scheduled
// 2. Nothing runs before the host delivers the flush
// 3. The queue is emptied and the flushing flag cleared afterwards
func TestRawScheduler_ExecutionOrder(t *testing.T) {
	host := newFakeHost()
	r := NewRawSchedulerWithConfig(host, quietConfig())

	var order []int
	for i := range 10 {
		r.ScheduleRaw(TaskFunc(func() { order = append(order, i) }))
	}

	assert.Empty(t, order, "tasks must wait for a high-priority turn")
	assert.True(t, r.Flushing())
	assert.Equal(t, 10, r.Len())

	host.runMicrotasks()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
	assert.Equal(t, 0, r.StorageLen())
	assert.Equal(t, 0, r.Cursor())
	assert.False(t, r.Flushing())
}

func TestRawScheduler_NoTasksNoRequest(t *testing.T) {
	host := newFakeHost()
	_ = NewRawSchedulerWithConfig(host, quietConfig())

	host.runUntilIdle()

	assert.Zero(t, host.toggles)
	assert.Zero(t, host.timeouts)
}

// TestRawScheduler_OneRequestPerDrain verifies request deduplication
// Given: an empty scheduler
// When: several tasks are scheduled before the queue drains, then more after it drained
// Then: exactly one request is issued per empty-to-non-empty transition
func TestRawScheduler_OneRequestPerDrain(t *testing.T) {
	host := newFakeHost()
	r := NewRawSchedulerWithConfig(host, quietConfig())
	noop := TaskFunc(func() {})

	r.ScheduleRaw(noop)
	r.ScheduleRaw(noop)
	r.ScheduleRaw(noop)
	assert.Equal(t, 1, host.toggles)

	host.runMicrotasks()
	r.ScheduleRaw(noop)
	r.ScheduleRaw(noop)
	assert.Equal(t, 2, host.toggles)
}

func TestRawScheduler_RecursiveSchedulingRunsAfterPending(t *testing.T) {
	host := newFakeHost()
	r := NewRawSchedulerWithConfig(host, quietConfig())

	var order []string
	r.ScheduleRaw(TaskFunc(func() {
		order = append(order, "A")
		r.ScheduleRaw(TaskFunc(func() { order = append(order, "X") }))
	}))
	r.ScheduleRaw(TaskFunc(func() { order = append(order, "B") }))
	r.ScheduleRaw(TaskFunc(func() { order = append(order, "C") }))

	host.runMicrotasks()

	assert.Equal(t, []string{"A", "B", "C", "X"}, order)
	assert.Equal(t, 1, host.toggles, "scheduling from a running task must not request another flush")
}

// TestRawScheduler_CompactsAfterCapacity verifies bounded storage
// Given: 1100 tasks queued before the flush starts
// When: the flush invokes more than DefaultCapacity tasks
// Then: the storage shrinks to the tasks still pending and the cursor restarts at 0
func TestRawScheduler_CompactsAfterCapacity(t *testing.T) {
	host := newFakeHost()
	r := NewRawSchedulerWithConfig(host, quietConfig())

	const total = 1100
	storage := make([]int, total)
	for i := range total {
		r.ScheduleRaw(TaskFunc(func() { storage[i] = r.StorageLen() }))
	}

	host.runMicrotasks()

	assert.Equal(t, total, storage[DefaultCapacity], "the task at the threshold still sees the full storage")
	assert.Equal(t, total-DefaultCapacity-1, storage[DefaultCapacity+1], "storage compacted to pending tasks")
	assert.Equal(t, int64(1), r.Stats().Compactions)
	assert.Equal(t, int64(total), r.Stats().Executed)
	assert.Equal(t, 0, r.StorageLen())
}

func TestRawScheduler_CompactionBoundsSelfSchedulingChain(t *testing.T) {
	host := newFakeHost()
	cfg := quietConfig()
	cfg.Capacity = 4
	r := NewRawSchedulerWithConfig(host, cfg)

	const chain = 50
	ran := 0
	maxStorage := 0
	var step func()
	step = func() {
		ran++
		maxStorage = max(maxStorage, r.StorageLen())
		if ran < chain {
			r.ScheduleRaw(TaskFunc(step))
		}
	}
	r.ScheduleRaw(TaskFunc(step))

	host.runMicrotasks()

	assert.Equal(t, chain, ran)
	assert.LessOrEqual(t, maxStorage, cfg.Capacity+2)
	assert.Positive(t, r.Stats().Compactions)
	assert.Equal(t, 1, host.toggles)
}

// TestRawScheduler_PanicLeavesConsistentState tests raw failure semantics
// Main test items:
// 1. A panicking task unwinds out of the flush into the host
// 2. Tasks after it stay queued and the cursor points past the failed task
// 3. Scheduling more work does not re-arm the host; RequestFlush does
// 4. The resumed flush runs the remaining tasks exactly once
func TestRawScheduler_PanicLeavesConsistentState(t *testing.T) {
	host := newFakeHost()
	r := NewRawSchedulerWithConfig(host, quietConfig())
	boom := errors.New("boom")

	var log []string
	r.ScheduleRaw(TaskFunc(func() { log = append(log, "A") }))
	r.ScheduleRaw(TaskFunc(func() { panic(boom) }))
	r.ScheduleRaw(TaskFunc(func() { log = append(log, "C") }))

	host.runMicrotasks()

	require.Len(t, host.uncaught, 1)
	assert.Equal(t, boom, host.uncaught[0])
	assert.Equal(t, []string{"A"}, log)
	assert.Equal(t, 2, r.Cursor())
	assert.Equal(t, 3, r.StorageLen())
	assert.True(t, r.Flushing())

	r.ScheduleRaw(TaskFunc(func() { log = append(log, "D") }))
	assert.Equal(t, 1, host.toggles)
	host.runMicrotasks()
	assert.Equal(t, []string{"A"}, log)

	r.RequestFlush()
	host.runMicrotasks()

	assert.Equal(t, []string{"A", "C", "D"}, log)
	assert.Equal(t, 0, r.StorageLen())
	assert.False(t, r.Flushing())
}

func TestRawScheduler_RepeatedRequestsRunEachTaskOnce(t *testing.T) {
	for _, tc := range []struct {
		name string
		host func(*fakeHost) Timers
	}{
		{name: "observer", host: func(h *fakeHost) Timers { return h }},
		{name: "timer", host: func(h *fakeHost) Timers { return timersOnly{h} }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fh := newFakeHost()
			r := NewRawSchedulerWithConfig(tc.host(fh), quietConfig())

			counts := make([]int, 5)
			for i := range counts {
				r.ScheduleRaw(TaskFunc(func() { counts[i]++ }))
			}
			r.RequestFlush()
			r.RequestFlush()
			r.RequestFlush()

			fh.advance(time.Second)

			assert.Equal(t, []int{1, 1, 1, 1, 1}, counts)
			assert.Empty(t, fh.timers, "every request must clear both of its timers")
		})
	}
}

func TestRawScheduler_TimerStrategySurvivesDroppedZeroDelay(t *testing.T) {
	host := newFakeHost()
	host.dropZeroDelay = true
	r := NewRawSchedulerWithConfig(timersOnly{host}, quietConfig())

	ran := false
	r.ScheduleRaw(TaskFunc(func() { ran = true }))

	host.advance(DefaultTimerInterval - time.Millisecond)
	assert.False(t, ran)

	host.advance(time.Millisecond)
	assert.True(t, ran)
	assert.Empty(t, host.timers)
}

func TestRawScheduler_NilTaskDropped(t *testing.T) {
	host := newFakeHost()
	r := NewRawSchedulerWithConfig(host, quietConfig())

	r.ScheduleRaw(nil)

	assert.Zero(t, r.Len())
	assert.Zero(t, host.toggles)
}

type recordingMetrics struct {
	NilMetrics
	requests    int
	flushes     int
	invoked     int
	compactions int
	reclaimed   int
	taskErrors  int
	rethrown    int
}

func (m *recordingMetrics) RecordFlushRequested(string, Strategy) { m.requests++ }
func (m *recordingMetrics) RecordFlush(_ string, tasks int, _ time.Duration) {
	m.flushes++
	m.invoked += tasks
}
func (m *recordingMetrics) RecordCompaction(_ string, reclaimed int) {
	m.compactions++
	m.reclaimed += reclaimed
}
func (m *recordingMetrics) RecordTaskError(string)     { m.taskErrors++ }
func (m *recordingMetrics) RecordErrorRethrown(string) { m.rethrown++ }

func TestRawScheduler_RecordsMetrics(t *testing.T) {
	host := newFakeHost()
	metrics := &recordingMetrics{}
	cfg := quietConfig()
	cfg.Capacity = 2
	cfg.Metrics = metrics
	r := NewRawSchedulerWithConfig(host, cfg)

	for range 5 {
		r.ScheduleRaw(TaskFunc(func() {}))
	}
	host.runMicrotasks()

	assert.Equal(t, 1, metrics.requests)
	assert.Equal(t, 1, metrics.flushes)
	assert.Equal(t, 5, metrics.invoked)
	assert.Equal(t, 1, metrics.compactions)
	assert.Equal(t, 3, metrics.reclaimed)
}
