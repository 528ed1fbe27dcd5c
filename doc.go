// Package asap runs tasks "as soon as possible" on a single-context event loop.
//
// A task scheduled with asap runs after the code that scheduled it returns,
// but before the loop handles any timer or IO callback. Tasks run in the order
// they were scheduled. A task that panics does not stop the tasks behind it:
// the failure is captured and re-thrown on a later timer turn of the loop, so
// the loop's crash reporter still sees every failure, in order.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	if err := asap.InitGlobalScheduler(nil); err != nil { // config from ASAP_* env vars
//		log.Fatal(err)
//	}
//	defer asap.ShutdownGlobalScheduler()
//
//	asap.ScheduleFunc(func() {
//		// runs on the global loop
//	})
//
// # Key Concepts
//
// Loop (package eventloop): the host. It runs callbacks one at a time in
// turns: the high-priority lane first, then expired timers, then callbacks
// posted from other goroutines.
//
// RawScheduler (package core): FIFO queue flushed on a high-priority turn.
// Panics propagate to the loop and leave the remaining tasks for a later flush.
//
// SafeScheduler (package core): wraps every task in a recyclable holder that
// captures its panic as a *TaskError and defers the re-throw.
//
// Scheduler (this package): a SafeScheduler bound to its Loop, usable from
// any goroutine.
//
// # Thread Safety
//
// The core schedulers are not goroutine safe and must stay on their loop.
// Scheduler and the Loop host API may be called from anywhere.
//
// # Example
//
//	loop := asap.NewLoop(eventloop.WithName("ui"))
//	loop.Start()
//	defer loop.Stop()
//
//	s := asap.New(loop)
//	s.ScheduleFunc(func() { println("A") })
//	s.ScheduleFunc(func() { panic("B") }) // reported later, does not stop C
//	s.ScheduleFunc(func() { println("C") })
//
// For more details, see https://github.com/Swind/go-asap
package asap
