package loop

import (
	"runtime"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// maxSelectorWait bounds the selector's wait call independent of timer
// state, so an external shutdown signal delivered only via ping() is
// still noticed in bounded time (component F).
const maxSelectorWait = 60 * time.Second

// DefaultStackSize is the nominal "stack" budget recorded against each
// coroutine. Go goroutines grow their stacks dynamically, so this value
// is not allocated up front; it is kept as a constructor-configurable
// hint (see WithStackSizeHint) purely for parity with the spec's
// per-coroutine stack-size concept, and is otherwise unused.
const DefaultStackSize = 64 * 1024

// Loop is component F: it owns the readiness selector (B), the timer
// queue (C), the ping-event list (D) and ping pipe (E), drives the
// active-coroutine-count loop, and is the only goroutine ever allowed to
// touch its own unexported state directly — with the sole exception of
// Cancel and Ping, which are safe to call from any goroutine (§5/§7 of
// the runtime's concurrency model).
type Loop struct {
	poller    selector
	timers    timerQueue
	pingEvent eventList
	pingPipe  pingPipe

	current *Coroutine
	active  int

	running bool
	closed  bool

	cancelMu      sync.Mutex
	cancelPending []*Coroutine

	log *logiface.Logger[logiface.Event]

	stackSizeHint int
}

// Option configures a Loop at construction time.
type Option func(*config)

type config struct {
	log           *logiface.Logger[logiface.Event]
	stackSizeHint int
}

// WithLogger attaches a structured logger (see the logiface facade used
// throughout this module). Omit for a silent loop.
func WithLogger(log *logiface.Logger[logiface.Event]) Option {
	return func(c *config) { c.log = log }
}

// WithStackSizeHint records the nominal per-coroutine stack budget. See
// [DefaultStackSize].
func WithStackSizeHint(n int) Option {
	return func(c *config) { c.stackSizeHint = n }
}

// New constructs a Loop with a platform-appropriate readiness selector
// and ping pipe (epoll+eventfd on Linux, pselect+pipe elsewhere).
func New(opts ...Option) (*Loop, error) {
	cfg := config{stackSizeHint: DefaultStackSize}
	for _, o := range opts {
		o(&cfg)
	}

	poller, err := newSelector()
	if err != nil {
		return nil, err
	}
	pp, err := newPingPipe()
	if err != nil {
		_ = poller.close()
		return nil, err
	}

	l := &Loop{
		poller:        poller,
		pingPipe:      pp,
		log:           cfg.log,
		stackSizeHint: cfg.stackSizeHint,
	}
	if err := l.poller.add(pp.readFD(), Read, l.onPingReadable); err != nil {
		_ = poller.close()
		_ = pp.close()
		return nil, err
	}
	return l, nil
}

// Ping is thread-safe: it may be called from any goroutine, including
// one not associated with this Loop at all, to force the loop out of a
// blocking selector.wait. It atomically sets a flag and, if it was
// previously clear, writes one wakeup token to the ping pipe.
func (l *Loop) Ping() {
	l.pingPipe.trigger()
}

func (l *Loop) onPingReadable() {
	l.pingPipe.drain()
	// Scheduled rather than invoked inline, so ping-event callbacks
	// never run from within the selector's own dispatch step.
	l.timers.schedule(monotonicNow(), func() error { return l.pingEvent.emit() })
}

// IncActive increments the loop's active-coroutine count. Exposed for
// callers that keep the loop alive around external, non-coroutine work
// (mirrors component F's inc_active/dec_active pair).
func (l *Loop) IncActive() { l.active++ }

// DecActive decrements the loop's active-coroutine count, waking the
// loop if it reaches zero so Run can observe termination even while
// blocked in the selector.
func (l *Loop) DecActive() {
	l.active--
	if l.active <= 0 {
		l.Ping()
	}
}

func (l *Loop) incActive() { l.IncActive() }
func (l *Loop) decActive() { l.DecActive() }

// switchTo is component H: the stack-switch primitive, realized as a
// strict unbuffered-channel handoff. It saves the previous "current"
// coroutine (nil at the top level, or the coroutine performing a nested
// wake — e.g. an RPC reader coroutine waking a call waiter synchronously)
// and restores it once c suspends or terminates.
func (l *Loop) switchTo(c *Coroutine) {
	prev := l.current
	l.current = c
	c.state = StateRunning
	c.resume <- struct{}{}
	<-c.yielded
	l.current = prev
}

// suspend is the common body of every I-operation suspension point: it
// hands control back to whichever goroutine last called switchTo, then
// blocks until resumed. On resume it unconditionally clears any
// outstanding forced-cancel wake (cancelToken) — safe regardless of
// whether that wake or the coroutine's own registered wake fired first —
// and reports cancellation if the CANCELLED flag was observed.
func (l *Loop) suspend(c *Coroutine) error {
	c.yielded <- struct{}{}
	<-c.resume
	if c.cancelToken != nil {
		l.timers.cancel(c.cancelToken)
		c.cancelToken = nil
	}
	if c.cancelled {
		c.cancelled = false
		return ErrCancelled
	}
	return nil
}

// Current returns the coroutine presently running on l, or nil if called
// from outside any coroutine body (e.g. a timer callback invoked
// directly by Run). Lets a component spawned as a coroutine body (such
// as an rpc.Channel's reader) learn its own handle without the spawner
// having to pass it back in.
func (l *Loop) Current() *Coroutine { return l.current }

func (l *Loop) wake(c *Coroutine) callback {
	return func() error {
		l.switchTo(c)
		return nil
	}
}

// Spawn creates a new coroutine with its body scheduled to run on the
// next loop iteration, and increments the active-coroutine count.
// Fails with ErrMemory if the loop has already finished running.
func (l *Loop) Spawn(body Body) (*Coroutine, error) {
	if l.closed {
		return nil, ErrMemory
	}
	c := &Coroutine{
		loop:     l,
		resume:   make(chan struct{}),
		yielded:  make(chan struct{}),
		body:     body,
		state:    StateScheduled,
		refcount: 2,
		log:      l.log,
	}
	runtime.SetFinalizer(c, finalizeCoroutine)
	go c.trampoline()
	l.timers.schedule(monotonicNow(), l.wake(c))
	l.incActive()
	if l.log != nil {
		l.log.Debug().Log("coroutine spawned")
	}
	return c, nil
}

// Run drives the loop until every coroutine has finished and the timer
// queue is empty. It returns the first error surfaced by a failing
// timer callback or by the selector itself.
func (l *Loop) Run() error {
	if l.running {
		return ErrAlreadyRunning
	}
	l.running = true
	defer func() {
		l.running = false
		l.closed = true
	}()

	for {
		l.drainCancels()

		now := monotonicNow()
		if err := l.timers.drain(now); err != nil {
			return err
		}

		if l.active <= 0 {
			if _, pending := l.timers.nextDeadline(); !pending {
				return nil
			}
		}

		timeout := l.computeTimeout(now)
		if err := l.poller.wait(timeout); err != nil {
			return err
		}
	}
}

func (l *Loop) computeTimeout(now time.Time) time.Duration {
	deadline, ok := l.timers.nextDeadline()
	if !ok {
		return maxSelectorWait
	}
	d := deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	if d > maxSelectorWait {
		d = maxSelectorWait
	}
	return d
}

// Close releases the loop's OS resources (epoll/eventfd or pselect fds).
// Call after Run returns.
func (l *Loop) Close() error {
	err1 := l.poller.close()
	err2 := l.pingPipe.close()
	if err1 != nil {
		return err1
	}
	return err2
}
