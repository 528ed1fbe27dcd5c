package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-asap/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// SchedulerSnapshotProvider provides current scheduler stats snapshots.
// It must be safe to call from the poller goroutine, as asap.Scheduler is.
type SchedulerSnapshotProvider interface {
	Stats() core.SchedulerStats
}

// LoopSnapshotProvider provides current loop stats snapshots.
type LoopSnapshotProvider interface {
	Stats() core.LoopStats
}

// SnapshotPoller periodically exports scheduler/loop Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	schedulersMu sync.RWMutex
	schedulers   map[string]SchedulerSnapshotProvider

	loopsMu sync.RWMutex
	loops   map[string]LoopSnapshotProvider

	schedulerPending       *prom.GaugeVec
	schedulerStorage       *prom.GaugeVec
	schedulerFlushing      *prom.GaugeVec
	schedulerFreeHolders   *prom.GaugeVec
	schedulerPendingErrors *prom.GaugeVec

	loopPosted     *prom.GaugeVec
	loopMicrotasks *prom.GaugeVec
	loopTimers     *prom.GaugeVec
	loopUncaught   *prom.GaugeVec
	loopRunning    *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	schedulerPending := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "scheduler_pending",
		Help:      "Number of pending tasks per scheduler.",
	}, []string{"scheduler", "strategy"})
	schedulerStorage := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "scheduler_storage_len",
		Help:      "Queue storage length per scheduler, consumed slots included.",
	}, []string{"scheduler", "strategy"})
	schedulerFlushing := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "scheduler_flushing",
		Help:      "Scheduler flush requested state (1=requested, 0=idle).",
	}, []string{"scheduler", "strategy"})
	schedulerFreeHolders := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "scheduler_free_holders",
		Help:      "Task holders waiting for reuse per scheduler.",
	}, []string{"scheduler", "strategy"})
	schedulerPendingErrors := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "scheduler_pending_errors",
		Help:      "Captured task failures not yet re-thrown per scheduler.",
	}, []string{"scheduler", "strategy"})

	loopPosted := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "loop_posted",
		Help:      "Callbacks posted from other goroutines waiting per loop.",
	}, []string{"loop"})
	loopMicrotasks := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "loop_microtasks",
		Help:      "High-priority callbacks waiting per loop.",
	}, []string{"loop"})
	loopTimers := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "loop_timers",
		Help:      "Armed timers per loop.",
	}, []string{"loop"})
	loopUncaught := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "loop_uncaught_errors",
		Help:      "Uncaught errors reported per loop snapshot.",
	}, []string{"loop"})
	loopRunning := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "asap",
		Name:      "loop_running",
		Help:      "Loop running state (1=running, 0=stopped).",
	}, []string{"loop"})

	var err error
	if schedulerPending, err = registerCollector(reg, schedulerPending); err != nil {
		return nil, err
	}
	if schedulerStorage, err = registerCollector(reg, schedulerStorage); err != nil {
		return nil, err
	}
	if schedulerFlushing, err = registerCollector(reg, schedulerFlushing); err != nil {
		return nil, err
	}
	if schedulerFreeHolders, err = registerCollector(reg, schedulerFreeHolders); err != nil {
		return nil, err
	}
	if schedulerPendingErrors, err = registerCollector(reg, schedulerPendingErrors); err != nil {
		return nil, err
	}
	if loopPosted, err = registerCollector(reg, loopPosted); err != nil {
		return nil, err
	}
	if loopMicrotasks, err = registerCollector(reg, loopMicrotasks); err != nil {
		return nil, err
	}
	if loopTimers, err = registerCollector(reg, loopTimers); err != nil {
		return nil, err
	}
	if loopUncaught, err = registerCollector(reg, loopUncaught); err != nil {
		return nil, err
	}
	if loopRunning, err = registerCollector(reg, loopRunning); err != nil {
		return nil, err
	}

	return &SnapshotPoller{
		interval:               interval,
		schedulers:             make(map[string]SchedulerSnapshotProvider),
		loops:                  make(map[string]LoopSnapshotProvider),
		schedulerPending:       schedulerPending,
		schedulerStorage:       schedulerStorage,
		schedulerFlushing:      schedulerFlushing,
		schedulerFreeHolders:   schedulerFreeHolders,
		schedulerPendingErrors: schedulerPendingErrors,
		loopPosted:             loopPosted,
		loopMicrotasks:         loopMicrotasks,
		loopTimers:             loopTimers,
		loopUncaught:           loopUncaught,
		loopRunning:            loopRunning,
	}, nil
}

// AddScheduler adds or replaces a scheduler snapshot provider by name.
func (p *SnapshotPoller) AddScheduler(name string, provider SchedulerSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "scheduler")
	p.schedulersMu.Lock()
	p.schedulers[name] = provider
	p.schedulersMu.Unlock()
}

// AddLoop adds or replaces a loop snapshot provider by name.
func (p *SnapshotPoller) AddLoop(name string, provider LoopSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "loop")
	p.loopsMu.Lock()
	p.loops[name] = provider
	p.loopsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func (p *SnapshotPoller) collectOnce() {
	p.schedulersMu.RLock()
	for name, provider := range p.schedulers {
		stats := provider.Stats()
		strategy := stats.Strategy.String()
		p.schedulerPending.WithLabelValues(name, strategy).Set(float64(stats.Pending))
		p.schedulerStorage.WithLabelValues(name, strategy).Set(float64(stats.StorageLen))
		p.schedulerFlushing.WithLabelValues(name, strategy).Set(boolGauge(stats.Flushing))
		p.schedulerFreeHolders.WithLabelValues(name, strategy).Set(float64(stats.FreeHolders))
		p.schedulerPendingErrors.WithLabelValues(name, strategy).Set(float64(stats.PendingErrors))
	}
	p.schedulersMu.RUnlock()

	p.loopsMu.RLock()
	for name, provider := range p.loops {
		stats := provider.Stats()
		p.loopPosted.WithLabelValues(name).Set(float64(stats.Posted))
		p.loopMicrotasks.WithLabelValues(name).Set(float64(stats.Microtasks))
		p.loopTimers.WithLabelValues(name).Set(float64(stats.Timers))
		p.loopUncaught.WithLabelValues(name).Set(float64(stats.Uncaught))
		p.loopRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.loopsMu.RUnlock()
}
