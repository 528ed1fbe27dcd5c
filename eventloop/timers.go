package eventloop

import (
	"container/heap"
	"time"

	"github.com/Swind/go-asap/core"
)

// timer is an armed timeout or interval.
type timer struct {
	id       core.TimerID
	when     time.Time
	seq      uint64 // FIFO among timers with the same deadline
	interval time.Duration
	fn       func()
	index    int // for heap interface
}

// timerHeap implements heap.Interface ordered by (when, seq).
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	n := len(*h)
	item := x.(*timer)
	item.index = n
	*h = append(*h, item)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h timerHeap) peek() *timer {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}

// SetTimeout arms a one-shot timer. Safe to call from any goroutine.
func (l *Loop) SetTimeout(fn func(), delay time.Duration) core.TimerID {
	if delay < 0 {
		delay = 0
	}
	return l.armTimer(fn, delay, 0)
}

// SetInterval arms a recurring timer. Safe to call from any goroutine.
func (l *Loop) SetInterval(fn func(), interval time.Duration) core.TimerID {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return l.armTimer(fn, interval, interval)
}

// ClearTimer cancels a timer. Unknown ids are ignored.
func (l *Loop) ClearTimer(id core.TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.timerIndex[id]
	if !ok {
		return
	}
	delete(l.timerIndex, id)
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
	}
}

func (l *Loop) armTimer(fn func(), delay, interval time.Duration) core.TimerID {
	l.mu.Lock()
	l.nextTimerID++
	id := l.nextTimerID

	// A host that drops zero-delay timeouts hands out an id that never fires.
	if l.dropZeroDelay && interval == 0 && delay == 0 {
		l.mu.Unlock()
		return id
	}
	if l.closed.Load() || fn == nil {
		l.mu.Unlock()
		return id
	}

	l.timerSeq++
	t := &timer{
		id:       id,
		when:     l.clock.Now().Add(delay),
		seq:      l.timerSeq,
		interval: interval,
		fn:       fn,
	}
	heap.Push(&l.timers, t)
	l.timerIndex[id] = t
	l.mu.Unlock()

	l.wake()
	return id
}

// popExpiredTimer removes the next timer due at now that was armed before the
// current turn began. Intervals are re-armed before they are returned, so a
// callback may clear its own interval.
func (l *Loop) popExpiredTimer(now time.Time, maxSeq uint64) (*timer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.timers.peek()
	if t == nil || t.when.After(now) || t.seq > maxSeq {
		return nil, false
	}
	heap.Pop(&l.timers)

	if t.interval > 0 {
		next := t.when.Add(t.interval)
		// Missed ticks are dropped rather than replayed.
		if !next.After(now) {
			next = now.Add(t.interval)
		}
		l.timerSeq++
		rearmed := &timer{
			id:       t.id,
			when:     next,
			seq:      l.timerSeq,
			interval: t.interval,
			fn:       t.fn,
		}
		heap.Push(&l.timers, rearmed)
		l.timerIndex[t.id] = rearmed
	} else {
		delete(l.timerIndex, t.id)
	}
	return t, true
}

// nextDeadline returns the deadline of the earliest armed timer.
func (l *Loop) nextDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.timers.peek()
	if t == nil {
		return time.Time{}, false
	}
	return t.when, true
}
