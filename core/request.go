package core

import "time"

// DefaultTimerInterval is the period of the interval timer armed next to the
// zero-delay timeout by MakeRequestCallFromTimer.
const DefaultTimerInterval = 50 * time.Millisecond

// RequestFunc asks the host for a future invocation of a callback.
// It never fails and never calls the callback synchronously.
type RequestFunc func()

// MakeRequestCallFromObserver returns a RequestFunc that toggles a detached
// node observed by obs. The host delivers callback at its next high-priority
// turn.
func MakeRequestCallFromObserver(obs ChangeObserver, callback func()) RequestFunc {
	node := obs.ObserveChanges(callback)
	return node.Toggle
}

// MakeRequestCallFromTimer returns a RequestFunc that arms both a zero-delay
// timeout and a recurring interval with the same handler. Whichever fires
// first clears both and invokes callback exactly once. The interval covers
// hosts that drop zero-delay timeouts.
func MakeRequestCallFromTimer(timers Timers, callback func(), interval time.Duration) RequestFunc {
	if interval <= 0 {
		interval = DefaultTimerInterval
	}

	return func() {
		var (
			timeoutID  TimerID
			intervalID TimerID
			fired      bool
		)
		handle := func() {
			if fired {
				return
			}
			fired = true
			timers.ClearTimer(timeoutID)
			timers.ClearTimer(intervalID)
			callback()
		}
		timeoutID = timers.SetTimeout(handle, 0)
		intervalID = timers.SetInterval(handle, interval)
	}
}
