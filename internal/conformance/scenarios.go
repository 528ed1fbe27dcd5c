package conformance

import (
	"fmt"
	"slices"

	"github.com/Swind/go-asap/core"
)

// Scenario is one observable property checked against an environment.
type Scenario struct {
	Name        string
	Description string
	Run         func(h *harness) error
}

// Scenarios returns every scenario in run order.
func Scenarios() []Scenario {
	return []Scenario{
		{"fifo-exactly-once", "tasks run once, in order, whatever fails", fifoExactlyOnce},
		{"rethrow-fifo", "failures reach the host in failure order", rethrowFIFO},
		{"isolation", "a failing task does not stop the next one", isolation},
		{"no-tasks-no-requests", "an idle scheduler never asks the host for a turn", noTasksNoRequests},
		{"one-request-per-drain", "a flush is requested once per empty to non-empty transition", oneRequestPerDrain},
		{"recursive-after-pending", "tasks scheduled by a task run after the pending ones", recursiveAfterPending},
		{"compaction", "consumed slots are reclaimed past capacity", compaction},
		{"request-idempotence", "extra flush requests never re-run tasks", requestIdempotence},
		{"raw-panic-resume", "a raw queue resumes after a panic once a flush is requested", rawPanicResume},
		{"holder-reuse", "task holders are recycled", holderReuse},
	}
}

func expectEqual[T comparable](what string, got, want T) error {
	if got != want {
		return fmt.Errorf("%s: got %v, want %v", what, got, want)
	}
	return nil
}

func expectSlice[T comparable](what string, got, want []T) error {
	if !slices.Equal(got, want) {
		return fmt.Errorf("%s: got %v, want %v", what, got, want)
	}
	return nil
}

func fifoExactlyOnce(h *harness) error {
	s := h.safe()
	n := h.capacity()*3/2 + 10

	var ran []int
	var wantRan []int
	var wantErrors []any
	for i := range n {
		wantRan = append(wantRan, i)
		failing := i%7 == 3
		if failing {
			wantErrors = append(wantErrors, i)
		}
		s.ScheduleFunc(func() {
			ran = append(ran, i)
			if failing {
				panic(i)
			}
		})
	}
	h.settle()

	if err := expectSlice("executed tasks", ran, wantRan); err != nil {
		return err
	}
	if err := expectSlice("re-thrown errors", h.crashes.taskValues(), wantErrors); err != nil {
		return err
	}
	return expectEqual("pending errors", s.PendingErrors(), 0)
}

func rethrowFIFO(h *harness) error {
	s := h.safe()

	var ran []string
	s.ScheduleFunc(func() { ran = append(ran, "A") })
	s.ScheduleFunc(func() { panic("D") })
	s.ScheduleFunc(func() { panic("E") })
	s.ScheduleFunc(func() { ran = append(ran, "C") })
	h.settle()

	if err := expectSlice("executed tasks", ran, []string{"A", "C"}); err != nil {
		return err
	}
	return expectSlice("re-thrown errors", h.crashes.taskValues(), []any{"D", "E"})
}

func isolation(h *harness) error {
	s := h.safe()

	var ran []string
	crashesBeforeC := -1
	s.ScheduleFunc(func() { ran = append(ran, "A") })
	s.ScheduleFunc(func() { panic("B") })
	s.ScheduleFunc(func() {
		ran = append(ran, "C")
		crashesBeforeC = len(h.crashes.taskValues())
	})
	h.settle()

	if err := expectSlice("executed tasks", ran, []string{"A", "C"}); err != nil {
		return err
	}
	if err := expectEqual("errors reported before C", crashesBeforeC, 0); err != nil {
		return err
	}
	return expectSlice("re-thrown errors", h.crashes.taskValues(), []any{"B"})
}

func noTasksNoRequests(h *harness) error {
	_ = h.safe()
	_ = h.raw()
	h.settle()

	if err := expectEqual("flush requests", h.metrics.requests, 0); err != nil {
		return err
	}
	stats := h.loop.Stats()
	if err := expectEqual("armed timers", stats.Timers, 0); err != nil {
		return err
	}
	return expectEqual("loop turns", stats.Turns, uint64(0))
}

func oneRequestPerDrain(h *harness) error {
	r := h.raw()

	count := 0
	for range 5 {
		r.ScheduleRaw(core.TaskFunc(func() { count++ }))
	}
	if err := expectEqual("requests after first batch", h.metrics.requests, 1); err != nil {
		return err
	}
	h.settle()
	if err := expectEqual("executed after first drain", count, 5); err != nil {
		return err
	}

	for range 5 {
		r.ScheduleRaw(core.TaskFunc(func() { count++ }))
	}
	h.settle()
	if err := expectEqual("requests after second batch", h.metrics.requests, 2); err != nil {
		return err
	}
	return expectEqual("executed after second drain", count, 10)
}

func recursiveAfterPending(h *harness) error {
	s := h.safe()

	var ran []string
	s.ScheduleFunc(func() {
		ran = append(ran, "first")
		s.ScheduleFunc(func() { ran = append(ran, "nested") })
	})
	s.ScheduleFunc(func() { ran = append(ran, "second") })
	h.settle()

	if err := expectSlice("executed tasks", ran, []string{"first", "second", "nested"}); err != nil {
		return err
	}
	return expectEqual("flush requests", h.metrics.requests, 1)
}

func compaction(h *harness) error {
	r := h.raw()
	c := h.capacity()
	n := c + 76

	wantCompactions := 0
	for left := n; left > c; left -= c + 1 {
		wantCompactions++
	}

	var ran []int
	var wantRan []int
	var probeErr error
	for i := range n {
		wantRan = append(wantRan, i)
		r.ScheduleRaw(core.TaskFunc(func() {
			ran = append(ran, i)
			// first task after the first compaction
			if i == c+1 {
				probeErr = expectEqual("storage after compaction", r.StorageLen(), n-(c+1))
				if probeErr == nil {
					probeErr = expectEqual("cursor after compaction", r.Cursor(), 1)
				}
			}
		}))
	}
	h.settle()

	if probeErr != nil {
		return probeErr
	}
	if err := expectSlice("executed tasks", ran, wantRan); err != nil {
		return err
	}
	if err := expectEqual("compactions", h.metrics.compactions, wantCompactions); err != nil {
		return err
	}
	return expectEqual("storage after drain", r.StorageLen(), 0)
}

func requestIdempotence(h *harness) error {
	r := h.raw()

	count := 0
	for range 3 {
		r.ScheduleRaw(core.TaskFunc(func() { count++ }))
	}
	r.RequestFlush()
	r.RequestFlush()
	h.settle()

	if err := expectEqual("executed tasks", count, 3); err != nil {
		return err
	}
	if err := expectEqual("flushing", r.Flushing(), false); err != nil {
		return err
	}
	return expectEqual("storage after drain", r.StorageLen(), 0)
}

func rawPanicResume(h *harness) error {
	r := h.raw()

	var ran []int
	r.ScheduleRaw(core.TaskFunc(func() { ran = append(ran, 1) }))
	r.ScheduleRaw(core.TaskFunc(func() {
		ran = append(ran, 2)
		panic("raw failure")
	}))
	r.ScheduleRaw(core.TaskFunc(func() { ran = append(ran, 3) }))
	h.settle()

	if err := expectSlice("executed before resume", ran, []int{1, 2}); err != nil {
		return err
	}
	if err := expectSlice("uncaught errors", h.crashes.taskValues(), []any{"raw failure"}); err != nil {
		return err
	}
	if err := expectEqual("pending after panic", r.Len(), 1); err != nil {
		return err
	}

	r.RequestFlush()
	h.settle()
	if err := expectSlice("executed after resume", ran, []int{1, 2, 3}); err != nil {
		return err
	}
	return expectEqual("storage after drain", r.StorageLen(), 0)
}

func holderReuse(h *harness) error {
	s := h.safe()

	const batch = 32
	for round := range 3 {
		for i := range batch {
			s.ScheduleFunc(func() {
				if i == 0 {
					panic(round)
				}
			})
		}
		h.settle()
		if err := expectEqual(fmt.Sprintf("free holders after round %d", round), s.FreeHolders(), batch); err != nil {
			return err
		}
	}
	return expectSlice("re-thrown errors", h.crashes.taskValues(), []any{0, 1, 2})
}
