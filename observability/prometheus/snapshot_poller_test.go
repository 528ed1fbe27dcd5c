package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-asap/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type schedulerStub struct {
	stats core.SchedulerStats
}

func (s schedulerStub) Stats() core.SchedulerStats { return s.stats }

type loopStub struct {
	stats core.LoopStats
}

func (s loopStub) Stats() core.LoopStats { return s.stats }

func TestSnapshotPoller_CollectsSchedulerAndLoopStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddScheduler("sched-a", schedulerStub{stats: core.SchedulerStats{
		Strategy:      core.StrategyTimer,
		Pending:       3,
		StorageLen:    5,
		Flushing:      true,
		FreeHolders:   2,
		PendingErrors: 1,
	}})
	poller.AddLoop("loop-a", loopStub{stats: core.LoopStats{
		Posted:     4,
		Microtasks: 2,
		Timers:     1,
		Uncaught:   6,
		Running:    true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.schedulerPending.WithLabelValues("sched-a", "timer"))
		micro := testutil.ToFloat64(poller.loopMicrotasks.WithLabelValues("loop-a"))
		return pending == 3 && micro == 2
	})

	if got := testutil.ToFloat64(poller.schedulerFlushing.WithLabelValues("sched-a", "timer")); got != 1 {
		t.Fatalf("scheduler flushing gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.schedulerPendingErrors.WithLabelValues("sched-a", "timer")); got != 1 {
		t.Fatalf("pending errors gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.loopUncaught.WithLabelValues("loop-a")); got != 6 {
		t.Fatalf("loop uncaught gauge = %v, want 6", got)
	}
	if got := testutil.ToFloat64(poller.loopRunning.WithLabelValues("loop-a")); got != 1 {
		t.Fatalf("loop running gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
