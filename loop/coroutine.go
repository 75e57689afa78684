package loop

import (
	"errors"
	"fmt"
	"os"

	"github.com/joeycumines/logiface"
)

// State is a coroutine's lifecycle stage (component G of the runtime).
type State uint8

const (
	// StateScheduled means the coroutine has been created or woken and
	// is waiting for the loop to dispatch it.
	StateScheduled State = iota
	// StateRunning means the coroutine currently holds the handoff.
	StateRunning
	// StateFinished means the body returned nil.
	StateFinished
	// StateFailed means the body returned a non-nil, non-cancellation error.
	StateFailed
	// StateCancelled means the body ended by propagating ErrCancelled
	// after its own CANCELLED flag was observed.
	StateCancelled
)

func (s State) terminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCancelled
}

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Body is the function a spawned coroutine runs. It receives the owning
// Loop so it can call further coroutine operations (Sleep, IOWait, Wait,
// Yield, Join, Spawn) from within itself.
type Body func(l *Loop) error

// Coroutine is component G: a stack (realized here as a dedicated
// goroutine), an execution context (the handoff channels), a body, a
// refcount, and a done-event list. At most one of {the loop's driving
// goroutine, any one Coroutine's goroutine} is ever actually executing;
// see [Loop.switchTo] (component H).
type Coroutine struct {
	loop      *Loop
	resume    chan struct{}
	yielded   chan struct{}
	body      Body
	state     State
	err       error
	cancelled bool
	// cancelToken is the forced zero-delay wake scheduled by Cancel, if
	// any is currently outstanding; suspend() clears it unconditionally
	// on every resume, which makes the two possible wake orderings
	// (the coroutine's own wait firing first, or the forced cancel wake
	// firing first) both safe — see ops.go.
	cancelToken token
	done        eventList
	refcount    int32
	observed    bool
	log         *logiface.Logger[logiface.Event]
}

// State reports the coroutine's current lifecycle stage.
func (c *Coroutine) State() State { return c.state }

// Err returns the captured error, valid only once State() is
// StateFailed.
func (c *Coroutine) Err() error { return c.err }

func (c *Coroutine) trampoline() {
	<-c.resume
	err := c.runBody()
	l := c.loop
	switch {
	case err == nil:
		c.state = StateFinished
	case errors.Is(err, ErrCancelled):
		// suspend() already cleared c.cancelled before returning this
		// sentinel to the body; its presence here is what distinguishes
		// an honest cancellation from an ordinary failure.
		c.state = StateCancelled
	default:
		c.state = StateFailed
		c.err = err
	}
	if c.log != nil {
		c.log.Debug().Str("state", c.state.String()).Log("coroutine terminated")
	}
	// Done-callbacks are scheduled onto the timer queue rather than
	// invoked synchronously here, keeping termination handling uniform
	// with every other timer-driven failure path (component G).
	l.timers.schedule(monotonicNow(), func() error { return c.done.emit() })
	l.decActive()
	c.yielded <- struct{}{}
}

func (c *Coroutine) runBody() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loop: coroutine panic: %v", r)
		}
	}()
	return c.body(c.loop)
}

// finalizeCoroutine is installed via runtime.SetFinalizer in Loop.Spawn.
// It implements the "print on drop unless observed" behavior from the
// error-handling design: a coroutine that failed and was never Join'd
// logs a warning when garbage collected.
func finalizeCoroutine(c *Coroutine) {
	if c.state == StateFailed && !c.observed {
		if c.log != nil {
			c.log.Warning().Err(c.err).Log("coroutine error dropped without observation")
		} else {
			fmt.Fprintf(os.Stderr, "loop: coroutine error dropped without observation: %v\n", c.err)
		}
	}
}
