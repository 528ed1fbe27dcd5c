package core

import (
	"time"
)

// fakeHost is a deterministic single-context host for unit tests. Microtasks
// form the high-priority lane; timers fire only when the test runs them.
type fakeHost struct {
	now    time.Duration
	seq    uint64
	nextID TimerID
	timers map[TimerID]*fakeTimer

	microtasks []func()

	dropZeroDelay bool

	toggles   int
	timeouts  int
	intervals int
	uncaught  []any
}

type fakeTimer struct {
	id       TimerID
	when     time.Duration
	seq      uint64
	interval time.Duration
	fn       func()
}

func newFakeHost() *fakeHost {
	return &fakeHost{timers: make(map[TimerID]*fakeTimer)}
}

func (h *fakeHost) arm(fn func(), delay, interval time.Duration) TimerID {
	h.nextID++
	h.seq++
	h.timers[h.nextID] = &fakeTimer{
		id:       h.nextID,
		when:     h.now + delay,
		seq:      h.seq,
		interval: interval,
		fn:       fn,
	}
	return h.nextID
}

func (h *fakeHost) SetTimeout(fn func(), delay time.Duration) TimerID {
	h.timeouts++
	if h.dropZeroDelay && delay <= 0 {
		h.nextID++
		return h.nextID
	}
	return h.arm(fn, delay, 0)
}

func (h *fakeHost) SetInterval(fn func(), interval time.Duration) TimerID {
	h.intervals++
	return h.arm(fn, interval, interval)
}

func (h *fakeHost) ClearTimer(id TimerID) {
	delete(h.timers, id)
}

func (h *fakeHost) ObserveChanges(callback func()) ObservedNode {
	return &fakeNode{host: h, callback: callback}
}

type fakeNode struct {
	host     *fakeHost
	callback func()
	pending  bool
}

func (n *fakeNode) Toggle() {
	n.host.toggles++
	if n.pending {
		return
	}
	n.pending = true
	n.host.microtasks = append(n.host.microtasks, func() {
		n.pending = false
		n.callback()
	})
}

func (h *fakeHost) safe(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			h.uncaught = append(h.uncaught, rec)
		}
	}()
	fn()
}

func (h *fakeHost) runMicrotasks() {
	for len(h.microtasks) > 0 {
		fn := h.microtasks[0]
		h.microtasks = h.microtasks[1:]
		h.safe(fn)
	}
}

// nextDue returns the earliest expired timer.
func (h *fakeHost) nextDue() *fakeTimer {
	var best *fakeTimer
	for _, t := range h.timers {
		if t.when > h.now {
			continue
		}
		if best == nil || t.when < best.when || (t.when == best.when && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

// runTimers fires every expired timer, one low-priority turn each.
func (h *fakeHost) runTimers() int {
	fired := 0
	for {
		t := h.nextDue()
		if t == nil {
			return fired
		}
		if t.interval > 0 {
			h.seq++
			t.when += t.interval
			t.seq = h.seq
		} else {
			delete(h.timers, t.id)
		}
		fired++
		h.safe(t.fn)
		h.runMicrotasks()
	}
}

func (h *fakeHost) runUntilIdle() {
	h.runMicrotasks()
	h.runTimers()
}

func (h *fakeHost) advance(d time.Duration) {
	h.now += d
	h.runUntilIdle()
}

// timersOnly hides the change observer of a host.
type timersOnly struct {
	h *fakeHost
}

func (t timersOnly) SetTimeout(fn func(), delay time.Duration) TimerID { return t.h.SetTimeout(fn, delay) }
func (t timersOnly) SetInterval(fn func(), interval time.Duration) TimerID {
	return t.h.SetInterval(fn, interval)
}
func (t timersOnly) ClearTimer(id TimerID) { t.h.ClearTimer(id) }

func quietConfig() *SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = NewNoOpLogger()
	return cfg
}
