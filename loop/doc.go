// Package loop implements a single-threaded cooperative coroutine runtime:
// an event loop driving a readiness selector, a timer queue, and an event
// list, with coroutines realized as goroutines that hand off control one
// at a time.
//
// Exactly one coroutine (or the loop's own driving goroutine) is ever
// runnable at a time. Control passes only at the suspension points
// exposed by [Loop]: Sleep, IOWait, Wait, Yield, and Join. No implicit
// preemption occurs anywhere else.
package loop
