package dlock

import (
	"github.com/coropile/cono/loop"
	"github.com/coropile/cono/rpc"
	"github.com/coropile/cono/wire"
	"github.com/joeycumines/logiface"
)

var (
	requestSig = wire.MustParseSignature("u4 u4")
	timeSig    = wire.MustParseSignature("u4")
)

// requestArgs is the wire shape shared by the "request" and "release"
// methods: remote_pid then remote_time, matching spec's
// request(remote_pid:u4, remote_time:u4).
type requestArgs struct {
	RemotePID  uint32
	RemoteTime uint32
}

// peer is one participant's channel binding: the two methods exported
// on ch, and its remote pid (unknown until learned from the first
// inbound call).
type peer struct {
	ch               *rpc.Channel
	reqName, relName string
	pid              uint32
	pidKnown         bool
}

// Lock is component L: Lamport's distributed mutual exclusion over a
// set of rpc.Channel peers. A Lock is strictly single-loop: every
// method must be called from a coroutine on the loop its peers'
// channels run on.
type Lock struct {
	pid  uint32
	time uint32

	requested bool
	acked     bool
	cancelled bool
	recursion uint32

	peers []*peer
	queue requestQueue
	wake  *loop.Event

	log *logiface.Logger[logiface.Event]
}

// New constructs a Lock identified by pid, a value unique among every
// participant this lock will ever peer with.
func New(pid uint32, opts ...Option) *Lock {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	return &Lock{
		pid:  pid,
		wake: loop.NewEvent(),
		log:  cfg.log,
	}
}

// onReceive applies the Lamport clock update rule common to every
// message this lock processes, local or remote: time := max(time,
// remoteTime) + 1.
func (lk *Lock) onReceive(remoteTime uint32) {
	if remoteTime > lk.time {
		lk.time = remoteTime
	}
	lk.time++
}

// AddPeer registers reqName/relName as this lock's request/release
// methods on ch, and records ch as a peer with unknown remote pid
// (learned from the first inbound call it makes). Safe to call while
// an Acquire is in flight: the new peer is included in the next
// broadcast round, not the one already underway.
func (lk *Lock) AddPeer(ch *rpc.Channel, reqName, relName string) {
	p := &peer{ch: ch, reqName: reqName, relName: relName}
	ch.Export(reqName, requestSig, timeSig, func(in []byte) ([]byte, error) {
		var args requestArgs
		if _, err := wire.Decode(requestSig, in, &args); err != nil {
			return nil, err
		}
		p.learn(args.RemotePID)
		lk.onReceive(args.RemoteTime)
		lk.queue.insert(requestEntry{time: args.RemoteTime, pid: args.RemotePID})
		return wire.Encode(timeSig, lk.time)
	})
	ch.Export(relName, requestSig, timeSig, func(in []byte) ([]byte, error) {
		var args requestArgs
		if _, err := wire.Decode(requestSig, in, &args); err != nil {
			return nil, err
		}
		p.learn(args.RemotePID)
		lk.onReceive(args.RemoteTime)
		if wasHead, found := lk.queue.removePID(args.RemotePID); found && wasHead {
			lk.wake.Fire()
		}
		return wire.Encode(timeSig, lk.time)
	})
	lk.peers = append(lk.peers, p)
	if lk.log != nil {
		lk.log.Debug().Str("request", reqName).Str("release", relName).Log("dlock peer added")
	}
}

func (p *peer) learn(pid uint32) {
	if !p.pidKnown {
		p.pid = pid
		p.pidKnown = true
	}
}

// RemovePeer unregisters ch's request/release methods and drops it
// from the peer set, evicting any pending queue entry attributed to
// it. If that entry was at the head, a locally waiting Acquire is
// woken to re-check whether it can now proceed.
func (lk *Lock) RemovePeer(ch *rpc.Channel) {
	for i, p := range lk.peers {
		if p.ch != ch {
			continue
		}
		ch.Unexport(p.reqName)
		ch.Unexport(p.relName)
		lk.peers = append(lk.peers[:i], lk.peers[i+1:]...)
		if p.pidKnown {
			if wasHead, found := lk.queue.removePID(p.pid); found && wasHead {
				lk.wake.Fire()
			}
		}
		return
	}
}

// acquired reports whether this participant currently holds the lock:
// its request has been acknowledged by every peer and its entry sits
// at the head of the queue.
func (lk *Lock) acquired() bool {
	head, ok := lk.queue.headPID()
	return lk.acked && ok && head == lk.pid
}

// Acquire blocks the calling coroutine until this participant holds
// the lock, incrementing the recursion count on every successful call
// (including a call made while the lock is already held). Returns
// ErrCancelled if the lock is closed, or the calling coroutine
// cancelled, while the call is pending.
func (lk *Lock) Acquire(l *loop.Loop) error {
	for !lk.acquired() {
		if lk.cancelled {
			return ErrCancelled
		}
		if !lk.requested {
			lk.time++
			lk.queue.insert(requestEntry{time: lk.time, pid: lk.pid})
			lk.requested = true

			if err := lk.broadcast(l, func(p *peer) string { return p.reqName }); err != nil {
				lk.requested = false
				lk.time++
				lk.queue.removePID(lk.pid)
				_ = lk.broadcast(l, func(p *peer) string { return p.relName })
				lk.wake.Fire()
				return err
			}
			lk.acked = true
			lk.wake.Fire()
			continue
		}
		if err := l.Wait(lk.wake); err != nil {
			return err
		}
	}
	lk.recursion++
	if lk.log != nil {
		lk.log.Debug().Uint64("pid", uint64(lk.pid)).Uint64("recursion", uint64(lk.recursion)).Log("dlock acquired")
	}
	return nil
}

// Release gives up one level of recursive acquisition. Once the
// recursion count reaches zero, the lock broadcasts release to every
// peer and is available to the next queued participant. Fails with
// ErrAssert if called without a matching held Acquire.
func (lk *Lock) Release(l *loop.Loop) error {
	if lk.recursion == 0 {
		return ErrAssert
	}
	lk.recursion--
	if lk.recursion > 0 {
		return nil
	}
	lk.time++
	lk.queue.removePID(lk.pid)
	lk.requested = false
	lk.acked = false
	if lk.log != nil {
		lk.log.Debug().Uint64("pid", uint64(lk.pid)).Log("dlock released")
	}
	return lk.broadcast(l, func(p *peer) string { return p.relName })
}

// broadcast calls method(p) against every current peer concurrently
// (one coroutine each, joined before returning), updating the local
// clock from each reply. Per spec's "design decision", this bounds
// broadcast latency by the slowest responder rather than their sum. A
// snapshot of the peer set is taken up front, so a peer added or
// removed while the join is in flight does not affect this round.
func (lk *Lock) broadcast(l *loop.Loop, method func(*peer) string) error {
	peers := append([]*peer(nil), lk.peers...)
	coros := make([]*loop.Coroutine, len(peers))
	var firstErr error
	for i, p := range peers {
		p := p
		name := method(p)
		c, err := l.Spawn(func(l *loop.Loop) error {
			return lk.callPeer(l, p, name)
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		coros[i] = c
	}
	for _, c := range coros {
		if c == nil {
			continue
		}
		if err := l.Join(c); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (lk *Lock) callPeer(l *loop.Loop, p *peer, method string) error {
	args := requestArgs{RemotePID: lk.pid, RemoteTime: lk.time}
	var newTime uint32
	if err := p.ch.Call(l, method, requestSig, args, timeSig, &newTime); err != nil {
		return err
	}
	lk.onReceive(newTime)
	return nil
}

// Close finalizes the lock: its CANCELLED flag is set, its methods are
// unregistered from every peer, and the wake-event fires so any
// blocked Acquire observes cancellation.
func (lk *Lock) Close() {
	lk.cancelled = true
	for _, p := range lk.peers {
		p.ch.Unexport(p.reqName)
		p.ch.Unexport(p.relName)
	}
	lk.peers = nil
	lk.wake.Fire()
}
