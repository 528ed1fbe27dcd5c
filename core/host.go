package core

import "time"

// =============================================================================
// Host capabilities
// =============================================================================

// TimerID identifies a timer armed on a host.
type TimerID uint64

// Timers is the timer facility every host must offer. It backs the fallback
// flush strategy and the deferred re-throw of task errors.
//
// Callbacks are delivered on the host's execution context on a low-priority
// turn. Implementations must not invoke fn synchronously from SetTimeout or
// SetInterval.
type Timers interface {
	// SetTimeout arms a one-shot timer.
	SetTimeout(fn func(), delay time.Duration) TimerID

	// SetInterval arms a recurring timer.
	SetInterval(fn func(), interval time.Duration) TimerID

	// ClearTimer cancels a timer armed by SetTimeout or SetInterval.
	// Clearing an unknown or already fired timer is a no-op.
	ClearTimer(id TimerID)
}

// ChangeObserver is the optional high-priority facility of a host. A host that
// implements it delivers observer callbacks on the next high-priority turn,
// strictly before any timer or IO turn.
type ChangeObserver interface {
	// ObserveChanges creates a detached node whose changes are reported to
	// callback.
	ObserveChanges(callback func()) ObservedNode
}

// ObservedNode is a value watched by a ChangeObserver. Several toggles before
// the host delivers the notification coalesce into a single callback.
type ObservedNode interface {
	Toggle()
}

// Strategy names the request primitive a scheduler picked for its host.
type Strategy int

const (
	// StrategyTimer arms a zero-delay timeout and a recurring interval.
	StrategyTimer Strategy = iota

	// StrategyObserver toggles an observed node.
	StrategyObserver
)

func (s Strategy) String() string {
	switch s {
	case StrategyObserver:
		return "observer"
	case StrategyTimer:
		return "timer"
	default:
		return "unknown"
	}
}
