package rpc

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/coropile/cono/loop"
	"github.com/coropile/cono/wire"
	"github.com/joeycumines/logiface"
)

type callState uint8

const (
	callStateUnset callState = iota
	callStateOK
	callStateError
	callStateCancel
)

type pendingCall struct {
	id        uint32
	state     callState
	response  []byte
	remoteErr *RemoteError
	wake      *loop.Event
}

type method struct {
	name    string
	in, out wire.Signature
	handler func(in []byte) ([]byte, error)
}

// Channel is component J: a framed request/response multiplexer over a
// single duplex, non-blocking file descriptor. All of a Channel's
// methods must be called from coroutines on the loop that owns it — per
// spec.md's concurrency model, channels are strictly single-loop, so
// none of its state is synchronized.
type Channel struct {
	fd           int
	maxFrameSize uint32

	lastID  uint32
	pending map[uint32]*pendingCall
	methods map[string]*method

	writeBuf      []byte
	writerRunning bool

	readerCoro *loop.Coroutine
	writerCoro *loop.Coroutine

	closed   bool
	closeErr error

	log *logiface.Logger[logiface.Event]
}

// NewChannel wraps fd (which NewChannel sets non-blocking) as an RPC
// channel. The caller owns fd until the channel finalizes (peer close,
// I/O error, or explicit Close), at which point the channel closes it.
func NewChannel(fd int, opts ...Option) (*Channel, error) {
	cfg := config{maxFrameSize: DefaultMaxFrameSize}
	for _, o := range opts {
		o(&cfg)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	return &Channel{
		fd:           fd,
		maxFrameSize: cfg.maxFrameSize,
		pending:      make(map[uint32]*pendingCall),
		methods:      make(map[string]*method),
		log:          cfg.log,
	}, nil
}

// Export registers name as an inbound RPC method: inSig/outSig describe
// the wire shape of its arguments and return value, and handler receives
// the raw argument bytes (decode them with wire.Decode) and must return
// the raw encoded return value (via wire.Encode). Re-exporting a name
// replaces its previous handler.
func (ch *Channel) Export(name string, inSig, outSig wire.Signature, handler func(in []byte) ([]byte, error)) {
	ch.methods[name] = &method{name: name, in: inSig, out: outSig, handler: handler}
}

// Unexport removes a previously exported method. A no-op if name was
// never exported.
func (ch *Channel) Unexport(name string) {
	delete(ch.methods, name)
}

// Call issues an outbound request and suspends the calling coroutine
// until the matching response arrives, the channel finalizes, or the
// coroutine is cancelled. in is encoded under inSig; on success the
// response payload is decoded under outSig into out (a pointer, or nil
// if the method returns nothing of interest to this caller).
func (ch *Channel) Call(l *loop.Loop, name string, inSig wire.Signature, in any, outSig wire.Signature, out any) error {
	if ch.closed {
		return ErrClosed
	}
	args, err := wire.Encode(inSig, in)
	if err != nil {
		return err
	}
	payload := make([]byte, 0, len(name)+1+len(args))
	payload = append(payload, name...)
	payload = append(payload, 0)
	payload = append(payload, args...)
	if len(payload) > int(ch.maxFrameSize) {
		return ErrOverflow
	}

	ch.lastID++
	id := ch.lastID
	pc := &pendingCall{id: id, wake: loop.NewEvent()}
	ch.pending[id] = pc

	ch.enqueueFrame(l, FrameRequest, id, payload)
	if ch.log != nil {
		ch.log.Debug().Str("method", name).Uint64("id", uint64(id)).Log("rpc call sent")
	}

	err = l.Wait(pc.wake)
	delete(ch.pending, id)
	if err != nil {
		return err
	}

	switch pc.state {
	case callStateOK:
		if out != nil {
			if _, err := wire.Decode(outSig, pc.response, out); err != nil {
				return err
			}
		}
		return nil
	case callStateError:
		return pc.remoteErr
	case callStateCancel:
		return ErrCancelled
	default:
		return ErrProtocol
	}
}

// Run is the inbound reader coroutine body (component J's "run"): it
// reads and dispatches frames until the peer closes the connection
// (returning nil) or a protocol/I-O error occurs (returning that error).
// Spawn it once per channel: l.Spawn(ch.Run).
func (ch *Channel) Run(l *loop.Loop) error {
	ch.readerCoro = l.Current()
	var buf []byte
	tmp := make([]byte, 4096)
	for {
		n, err := unix.Read(ch.fd, tmp)
		if err != nil {
			if err == unix.EAGAIN {
				if err := l.IOWait(ch.fd, loop.Read); err != nil {
					ch.finalize(l, err)
					return err
				}
				continue
			}
			ch.finalize(l, err)
			return err
		}
		if n == 0 {
			ch.finalize(l, nil)
			return nil
		}
		buf = append(buf, tmp[:n]...)

		for {
			frame, rest, ok, err := parseFrame(buf, ch.maxFrameSize)
			if err != nil {
				ch.finalize(l, err)
				return err
			}
			if !ok {
				break
			}
			buf = rest
			if err := ch.dispatch(l, frame); err != nil {
				ch.finalize(l, err)
				return err
			}
		}
	}
}

func (ch *Channel) dispatch(l *loop.Loop, frame parsedFrame) error {
	switch frame.typ {
	case FrameRequest:
		return ch.dispatchRequest(l, frame)
	case FrameResponse, FrameResponseError:
		return ch.dispatchResponse(frame)
	default:
		return &FrameError{Err: ErrProtocol, Type: frame.typ, ID: frame.id}
	}
}

func (ch *Channel) dispatchRequest(l *loop.Loop, frame parsedFrame) error {
	nameEnd := bytes.IndexByte(frame.payload, 0)
	if nameEnd < 0 {
		return &FrameError{Err: ErrProtocol, Type: frame.typ, ID: frame.id}
	}
	name := string(frame.payload[:nameEnd])
	args := frame.payload[nameEnd+1:]

	m, ok := ch.methods[name]
	if !ok {
		ch.sendError(l, frame.id, CodeNotExported, "NOT_EXPORTED", fmt.Sprintf("method %q not exported", name))
		return nil
	}

	out, err := m.handler(args)
	if err != nil {
		code, cname := classifyError(err)
		ch.sendError(l, frame.id, code, cname, err.Error())
		return nil
	}
	if len(out) > int(ch.maxFrameSize) {
		ch.sendError(l, frame.id, CodeOverflow, "OVERFLOW", "handler output exceeds max frame size")
		return nil
	}
	ch.enqueueFrame(l, FrameResponse, frame.id, out)
	return nil
}

func (ch *Channel) dispatchResponse(frame parsedFrame) error {
	pc, ok := ch.pending[frame.id]
	if !ok {
		// Late arrival against a call this side already gave up on.
		return nil
	}
	switch frame.typ {
	case FrameResponse:
		pc.response = append([]byte(nil), frame.payload...)
		pc.state = callStateOK
	case FrameResponseError:
		re, err := decodeRemoteError(frame.payload)
		if err != nil {
			return &FrameError{Err: err, Type: frame.typ, ID: frame.id}
		}
		pc.remoteErr = re
		pc.state = callStateError
	}
	pc.wake.Fire()
	return nil
}

func (ch *Channel) sendError(l *loop.Loop, id uint32, code ErrorCode, name, text string) {
	payload := encodeRemoteError(code, name, text)
	ch.enqueueFrame(l, FrameResponseError, id, payload)
}

func (ch *Channel) enqueueFrame(l *loop.Loop, typ FrameType, id uint32, payload []byte) {
	header := encodeHeader(typ, id, len(payload))
	ch.writeBuf = append(ch.writeBuf, header[:]...)
	ch.writeBuf = append(ch.writeBuf, payload...)
	if !ch.writerRunning {
		ch.writerRunning = true
		_, _ = l.Spawn(ch.runWriter)
	}
}

// runWriter drains writeBuf in ≤1KiB chunks copied onto a local slice so
// a reallocation of writeBuf (from a concurrent enqueueFrame elsewhere in
// the coroutine graph) can't invalidate a write already in flight.
// Started lazily by the first enqueueFrame after the buffer went empty;
// exits once it has drained everything.
func (ch *Channel) runWriter(l *loop.Loop) error {
	ch.writerCoro = l.Current()
	const chunkSize = 1024
	for len(ch.writeBuf) > 0 {
		n := len(ch.writeBuf)
		if n > chunkSize {
			n = chunkSize
		}
		chunk := append([]byte(nil), ch.writeBuf[:n]...)
		written, err := unix.Write(ch.fd, chunk)
		if err != nil {
			if err == unix.EAGAIN {
				if err := l.IOWait(ch.fd, loop.Write); err != nil {
					ch.writerRunning = false
					ch.finalize(l, err)
					return err
				}
				continue
			}
			ch.writerRunning = false
			ch.finalize(l, err)
			return err
		}
		ch.writeBuf = ch.writeBuf[written:]
	}
	ch.writerRunning = false
	return nil
}

// finalize enters the channel's terminal state: every outstanding
// pending call is forced to CANCEL and woken, the reader and writer
// coroutines are cancelled (a no-op against whichever of them is the
// caller itself), and the fd is closed. Idempotent.
//
// Cancelling the reader/writer explicitly, rather than relying on the
// fd closing to unblock their IOWait, matters because closing an fd
// that's still registered with the selector does not reliably generate
// a fresh readiness event for it — left alone, a suspended reader or
// writer would never be woken.
func (ch *Channel) finalize(l *loop.Loop, err error) {
	if ch.closed {
		return
	}
	ch.closed = true
	ch.closeErr = err
	for id, pc := range ch.pending {
		pc.state = callStateCancel
		pc.wake.Fire()
		delete(ch.pending, id)
	}
	if ch.readerCoro != nil {
		_ = l.Cancel(ch.readerCoro)
	}
	if ch.writerCoro != nil {
		_ = l.Cancel(ch.writerCoro)
	}
	_ = unix.Close(ch.fd)
	if ch.log != nil {
		ch.log.Debug().Err(err).Log("rpc channel finalized")
	}
}

// Close finalizes the channel from outside the reader/writer coroutines,
// e.g. to tear down a channel whose peer has gone silent. l is the loop
// the channel's coroutines were spawned on.
func (ch *Channel) Close(l *loop.Loop) error {
	ch.finalize(l, nil)
	return nil
}
