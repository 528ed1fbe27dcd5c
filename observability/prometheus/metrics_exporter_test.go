package prometheus

import (
	"testing"
	"time"

	"github.com/Swind/go-asap/core"
	"github.com/Swind/go-asap/eventloop"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("asap", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordFlushRequested("sched-a", core.StrategyObserver)
	exporter.RecordFlush("sched-a", 5, 250*time.Microsecond)
	exporter.RecordCompaction("sched-a", 1025)
	exporter.RecordQueueDepth("sched-a", 7)
	exporter.RecordTaskError("sched-a")
	exporter.RecordErrorRethrown("")

	if got := testutil.ToFloat64(exporter.flushRequestedTotal.WithLabelValues("sched-a", "observer")); got != 1 {
		t.Fatalf("flush requested = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.tasksExecutedTotal.WithLabelValues("sched-a")); got != 5 {
		t.Fatalf("tasks executed = %v, want 5", got)
	}
	if got := testutil.ToFloat64(exporter.compactionsTotal.WithLabelValues("sched-a")); got != 1 {
		t.Fatalf("compactions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.reclaimedSlotsTotal.WithLabelValues("sched-a")); got != 1025 {
		t.Fatalf("reclaimed slots = %v, want 1025", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("sched-a")); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.taskErrorsTotal.WithLabelValues("sched-a")); got != 1 {
		t.Fatalf("task errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.errorsRethrownTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("rethrown with empty name = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.flushDurationSeconds.WithLabelValues("sched-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("asap", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("asap", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskError("sched-a")
	second.RecordTaskError("sched-a")

	got := testutil.ToFloat64(first.taskErrorsTotal.WithLabelValues("sched-a"))
	if got != 2 {
		t.Fatalf("shared task error counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiver(t *testing.T) {
	var exporter *MetricsExporter
	exporter.RecordFlushRequested("x", core.StrategyTimer)
	exporter.RecordFlush("x", 1, time.Millisecond)
	exporter.RecordCompaction("x", 1)
	exporter.RecordQueueDepth("x", 1)
	exporter.RecordTaskError("x")
	exporter.RecordErrorRethrown("x")
}

// TestMetricsExporter_WiredIntoScheduler drives a real scheduler with the
// exporter as its metrics sink
func TestMetricsExporter_WiredIntoScheduler(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("asap", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	loop := eventloop.New(
		eventloop.WithClock(eventloop.NewManualClock(time.Unix(0, 0))),
		eventloop.WithLogger(core.NewNoOpLogger()),
		eventloop.WithPanicHandler(discardPanics{}),
	)
	s := core.NewSafeSchedulerWithConfig(loop.Host(), &core.SchedulerConfig{
		Name:     "wired",
		Capacity: 6,
		Logger:   core.NewNoOpLogger(),
		Metrics:  exporter,
	})

	for i := range 10 {
		s.ScheduleFunc(func() {
			if i == 3 {
				panic("task 3")
			}
		})
	}
	loop.RunUntilIdle()

	if got := testutil.ToFloat64(exporter.tasksExecutedTotal.WithLabelValues("wired")); got != 10 {
		t.Fatalf("tasks executed = %v, want 10", got)
	}
	if got := testutil.ToFloat64(exporter.flushRequestedTotal.WithLabelValues("wired", "observer")); got != 1 {
		t.Fatalf("flush requested = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.compactionsTotal.WithLabelValues("wired")); got != 1 {
		t.Fatalf("compactions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.taskErrorsTotal.WithLabelValues("wired")); got != 1 {
		t.Fatalf("task errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.errorsRethrownTotal.WithLabelValues("wired")); got != 1 {
		t.Fatalf("rethrown = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("wired")); got != 0 {
		t.Fatalf("queue depth = %v, want 0", got)
	}
}

type discardPanics struct{}

func (discardPanics) HandlePanic(string, any, []byte) {}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
