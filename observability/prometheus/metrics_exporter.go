package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-asap/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// defaultFlushBuckets suits flushes that usually take microseconds.
var defaultFlushBuckets = prom.ExponentialBuckets(0.00001, 4, 10)

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	flushRequestedTotal  *prom.CounterVec
	flushDurationSeconds *prom.HistogramVec
	tasksExecutedTotal   *prom.CounterVec
	compactionsTotal     *prom.CounterVec
	reclaimedSlotsTotal  *prom.CounterVec
	queueDepth           *prom.GaugeVec
	taskErrorsTotal      *prom.CounterVec
	errorsRethrownTotal  *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "asap"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = defaultFlushBuckets
	}

	requestedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "flush_requested_total",
		Help:      "Total number of flushes requested from the host.",
	}, []string{"scheduler", "strategy"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "flush_duration_seconds",
		Help:      "Flush pass duration in seconds.",
		Buckets:   buckets,
	}, []string{"scheduler"})
	executedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_executed_total",
		Help:      "Total number of tasks invoked by flushes.",
	}, []string{"scheduler"})
	compactionsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "compactions_total",
		Help:      "Total number of queue compactions.",
	}, []string{"scheduler"})
	reclaimedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "compaction_reclaimed_slots_total",
		Help:      "Total number of consumed queue slots reclaimed by compactions.",
	}, []string{"scheduler"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Pending tasks after the last flush.",
	}, []string{"scheduler"})
	taskErrorsVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_errors_total",
		Help:      "Total number of task failures captured.",
	}, []string{"scheduler"})
	rethrownVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_errors_rethrown_total",
		Help:      "Total number of captured task failures re-thrown to the host.",
	}, []string{"scheduler"})

	var err error
	if requestedVec, err = registerCollector(reg, requestedVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if executedVec, err = registerCollector(reg, executedVec); err != nil {
		return nil, err
	}
	if compactionsVec, err = registerCollector(reg, compactionsVec); err != nil {
		return nil, err
	}
	if reclaimedVec, err = registerCollector(reg, reclaimedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if taskErrorsVec, err = registerCollector(reg, taskErrorsVec); err != nil {
		return nil, err
	}
	if rethrownVec, err = registerCollector(reg, rethrownVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		flushRequestedTotal:  requestedVec,
		flushDurationSeconds: durationVec,
		tasksExecutedTotal:   executedVec,
		compactionsTotal:     compactionsVec,
		reclaimedSlotsTotal:  reclaimedVec,
		queueDepth:           queueDepthVec,
		taskErrorsTotal:      taskErrorsVec,
		errorsRethrownTotal:  rethrownVec,
	}, nil
}

// RecordFlushRequested records a call to the host request primitive.
func (m *MetricsExporter) RecordFlushRequested(schedulerName string, strategy core.Strategy) {
	if m == nil {
		return
	}
	m.flushRequestedTotal.WithLabelValues(schedulerLabel(schedulerName), strategy.String()).Inc()
}

// RecordFlush records one flush pass.
func (m *MetricsExporter) RecordFlush(schedulerName string, tasks int, duration time.Duration) {
	if m == nil {
		return
	}
	name := schedulerLabel(schedulerName)
	m.flushDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
	m.tasksExecutedTotal.WithLabelValues(name).Add(float64(tasks))
}

// RecordCompaction records a queue compaction.
func (m *MetricsExporter) RecordCompaction(schedulerName string, reclaimed int) {
	if m == nil {
		return
	}
	name := schedulerLabel(schedulerName)
	m.compactionsTotal.WithLabelValues(name).Inc()
	m.reclaimedSlotsTotal.WithLabelValues(name).Add(float64(reclaimed))
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(schedulerName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(schedulerLabel(schedulerName)).Set(float64(depth))
}

// RecordTaskError records a captured task failure.
func (m *MetricsExporter) RecordTaskError(schedulerName string) {
	if m == nil {
		return
	}
	m.taskErrorsTotal.WithLabelValues(schedulerLabel(schedulerName)).Inc()
}

// RecordErrorRethrown records a deferred re-throw.
func (m *MetricsExporter) RecordErrorRethrown(schedulerName string) {
	if m == nil {
		return
	}
	m.errorsRethrownTotal.WithLabelValues(schedulerLabel(schedulerName)).Inc()
}

func schedulerLabel(v string) string {
	return normalizeLabel(v, "unknown")
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
