package eventloop

import (
	"time"

	"github.com/Swind/go-asap/core"
)

var (
	_ core.Timers         = (*Loop)(nil)
	_ core.ChangeObserver = (*Loop)(nil)
)

// Host returns the capabilities schedulers should probe. It is the loop
// itself, or a timers-only view when the loop was built WithoutChangeObserver.
func (l *Loop) Host() core.Timers {
	if l.observerEnabled {
		return l
	}
	return timersOnly{l: l}
}

// timersOnly exposes the timer facility of a loop and nothing else.
type timersOnly struct {
	l *Loop
}

func (t timersOnly) SetTimeout(fn func(), delay time.Duration) core.TimerID {
	return t.l.SetTimeout(fn, delay)
}

func (t timersOnly) SetInterval(fn func(), interval time.Duration) core.TimerID {
	return t.l.SetInterval(fn, interval)
}

func (t timersOnly) ClearTimer(id core.TimerID) {
	t.l.ClearTimer(id)
}
