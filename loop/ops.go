package loop

import "time"

// Event is component D's public face: a FIFO list of waiters. Other
// packages (rpc's pending calls, dlock's wake event) build their
// suspension points on top of Event plus [Loop.Wait].
type Event struct {
	list eventList
}

// NewEvent creates an empty event.
func NewEvent() *Event { return &Event{} }

// Fire invokes every callback currently waiting on the event, in FIFO
// order, removing each as it runs. Safe to call either from the loop's
// own driving goroutine (between coroutines) or synchronously from
// within a running coroutine's body — e.g. an RPC reader coroutine
// waking the coroutine blocked on a matching pending call. New Wait
// registrations added during Fire (by a callback that itself calls Wait
// again) land after the callback currently executing, never re-entering
// the in-progress emission early.
func (e *Event) Fire() {
	_ = e.list.emit()
}

// Sleep suspends the calling coroutine for at least d, then resumes it.
// Must be called from within a coroutine body.
func (l *Loop) Sleep(d time.Duration) error {
	c := l.current
	if c == nil {
		return ErrNotRunning
	}
	tok := l.timers.schedule(monotonicNow().Add(d), l.wake(c))
	err := l.suspend(c)
	if err != nil {
		// Normal wakeup already popped tok from the heap; cancellation
		// unsubscribes so it doesn't fire later against a coroutine
		// that has moved on.
		l.timers.cancel(tok)
	}
	return err
}

// Wait suspends the calling coroutine until ev.Fire() is called (or it
// is cancelled). Must be called from within a coroutine body.
func (l *Loop) Wait(ev *Event) error {
	c := l.current
	if c == nil {
		return ErrNotRunning
	}
	tok := ev.list.add(l.wake(c))
	err := l.suspend(c)
	if err != nil {
		ev.list.remove(tok)
	}
	return err
}

// IOWait suspends the calling coroutine until fd is ready for dir, or it
// is cancelled. The caller must have just observed "would block" (EAGAIN)
// on fd before calling IOWait, per the selector's level-triggered
// registration contract. Must be called from within a coroutine body.
func (l *Loop) IOWait(fd int, dir Direction) error {
	c := l.current
	if c == nil {
		return ErrNotRunning
	}
	if err := l.poller.add(fd, dir, func() { l.switchTo(c) }); err != nil {
		return err
	}
	err := l.suspend(c)
	// Readiness is edge-triggered, one-shot: always unsubscribe on
	// resume, not only on cancellation.
	l.poller.remove(fd, dir)
	return err
}

// Yield suspends the calling coroutine for exactly one trip through the
// selector, giving any other ready coroutine or I/O callback a chance to
// run before it resumes (fairness). Must be called from within a
// coroutine body.
func (l *Loop) Yield() error {
	c := l.current
	if c == nil {
		return ErrNotRunning
	}
	tok := l.pingEvent.add(l.wake(c))
	l.Ping()
	err := l.suspend(c)
	if err != nil {
		l.pingEvent.remove(tok)
	}
	return err
}

// Join waits for c to terminate, then reports its outcome: nil if it
// finished normally, its captured error if it FAILED (marking the error
// observed, suppressing the drop-without-observation warning), or
// ErrCancelled if it was CANCELLED. Passing a nil handle returns the
// calling coroutine's recorded error, which is only set once its body
// has returned and so is always nil here: a failed Spawn's error is not
// replayed by Join. Must be called from within a coroutine body.
func (l *Loop) Join(c *Coroutine) error {
	caller := l.current
	if caller == nil {
		return ErrNotRunning
	}
	if c == nil {
		return caller.err
	}
	if !c.state.terminal() {
		tok := c.done.add(l.wake(caller))
		if err := l.suspend(caller); err != nil {
			c.done.remove(tok)
			c.refcount--
			return err
		}
	}
	var err error
	switch c.state {
	case StateFailed:
		err = c.err
		c.observed = true
	case StateCancelled:
		err = ErrCancelled
	}
	c.refcount--
	return err
}

// Cancel latches c's CANCELLED flag. If c is currently running (i.e. is
// the coroutine calling Cancel on itself), it fails with ErrCancelled
// rather than latching, since a running coroutine cannot also be
// scheduled for a forced resume. If c has already terminated, Cancel is
// a no-op. Otherwise, a zero-delay forced wake is scheduled (unless one
// is already outstanding) so the next suspension point inside c observes
// cancellation promptly rather than whenever its current wait happens to
// fire naturally.
//
// Cancel is safe to call from any goroutine, including one unrelated to
// this Loop — it only ever touches a mutex-protected pending-cancel
// queue and the thread-safe Ping; the actual state mutation happens on
// the loop's own goroutine during the next Run iteration.
func (l *Loop) Cancel(c *Coroutine) error {
	if c == nil {
		return nil
	}
	if c == l.current {
		return ErrCancelled
	}
	l.cancelMu.Lock()
	l.cancelPending = append(l.cancelPending, c)
	l.cancelMu.Unlock()
	l.Ping()
	return nil
}

func (l *Loop) drainCancels() {
	l.cancelMu.Lock()
	pending := l.cancelPending
	l.cancelPending = nil
	l.cancelMu.Unlock()
	for _, c := range pending {
		l.applyCancel(c)
	}
}

func (l *Loop) applyCancel(c *Coroutine) {
	if c.state.terminal() {
		return
	}
	c.cancelled = true
	if c.log != nil {
		c.log.Debug().Log("coroutine cancel requested")
	}
	if c.cancelToken == nil {
		c.cancelToken = l.timers.schedule(monotonicNow(), l.wake(c))
	}
}
