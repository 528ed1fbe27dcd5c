package eventloop

import "github.com/Swind/go-asap/core"

// QueueMicrotask queues fn on the high-priority lane. Microtasks run before
// the next timer or posted task, and microtasks queued by a microtask run in
// the same drain.
func (l *Loop) QueueMicrotask(fn func()) {
	if fn == nil || l.closed.Load() {
		return
	}
	l.mu.Lock()
	l.microtasks.push(fn)
	l.mu.Unlock()
	l.wake()
}

// ObserveChanges implements core.ChangeObserver. Toggling the returned node
// delivers callback on the next high-priority turn; toggles made before the
// delivery coalesce.
func (l *Loop) ObserveChanges(callback func()) core.ObservedNode {
	return &observedNode{loop: l, callback: callback}
}

type observedNode struct {
	loop     *Loop
	callback func()
	// guarded by loop.mu
	pending bool
	value   bool
}

func (n *observedNode) Toggle() {
	l := n.loop
	if l.closed.Load() {
		return
	}

	l.mu.Lock()
	n.value = !n.value
	if n.pending {
		l.mu.Unlock()
		return
	}
	n.pending = true
	l.microtasks.push(n.deliver)
	l.mu.Unlock()
	l.wake()
}

func (n *observedNode) deliver() {
	n.loop.mu.Lock()
	n.pending = false
	n.loop.mu.Unlock()
	n.callback()
}
