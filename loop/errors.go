package loop

import "errors"

// Error sentinels. Kinds follow the taxonomy in the project error model:
// operations either succeed or return one of these (or a wrapped
// variant produced by errors.Join/fmt.Errorf %w), never a panic, except
// for documented programmer-error conditions.
var (
	// ErrCancelled is returned by a suspension point when the calling
	// coroutine's CANCELLED flag was observed, or when the loop/channel
	// it was waiting on was finalized.
	ErrCancelled = errors.New("loop: cancelled")

	// ErrMemory is returned when spawning a coroutine fails because the
	// loop has been shut down and can no longer accept new work.
	ErrMemory = errors.New("loop: cannot allocate coroutine")

	// ErrAlreadyRunning is returned by Run if called while already running.
	ErrAlreadyRunning = errors.New("loop: already running")

	// ErrNotRunning is returned by an I-operation called outside any
	// coroutine (no "current coroutine").
	ErrNotRunning = errors.New("loop: no coroutine is currently running")

	// ErrClosed is not returned by any operation in this package; Spawn
	// on a loop that has finished running reports ErrMemory.
	ErrClosed = errors.New("loop: closed")
)
