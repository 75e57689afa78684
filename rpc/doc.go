// Package rpc implements the framed request/response multiplexer
// (component J): a length-prefixed frame protocol over a duplex,
// non-blocking file descriptor, a dedicated writer coroutine, an
// exported-method dispatcher for inbound requests, and a pending-call
// registry that maps responses back to the coroutine that issued the
// matching request.
//
// A Channel is driven by spawning its Run method as a coroutine body:
//
//	ch, err := rpc.NewChannel(fd)
//	coro, err := l.Spawn(ch.Run)
//
// Outbound calls and inbound dispatch both suspend the calling
// coroutine through the loop package's ordinary suspension points
// (Wait, IOWait), so a Channel never blocks the loop's other
// coroutines while waiting on the network.
package rpc
