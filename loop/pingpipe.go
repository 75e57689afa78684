package loop

// pingPipe is component E: a self-pipe used to unblock the selector from
// another goroutine. ping() atomically sets a flag and, if it was
// previously clear, writes one wakeup token (one byte to a pipe, or one
// 8-byte counter increment to an eventfd); the selector's read callback
// for the pipe drains all pending bytes, clears the flag, and the loop
// schedules the registered ping-event callbacks on the next iteration
// (never invoked synchronously from within the selector's dispatch, to
// keep failure handling uniform with every other suspension-point
// wakeup).
type pingPipe interface {
	// readFD is registered with the selector for readability.
	readFD() int
	// trigger performs the wakeup write, if not already pending.
	trigger()
	// drain consumes all pending wakeup bytes after a readiness callback.
	drain()
	// close releases the underlying fds.
	close() error
}
