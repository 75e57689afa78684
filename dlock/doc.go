// Package dlock implements Lamport's distributed mutual exclusion
// algorithm over a set of rpc.Channel peers: each Lock exports
// "request" and "release" methods on every peer channel, maintains a
// logical clock and a priority queue of outstanding requests ordered
// lexicographically by (time, pid), and grants local acquisition once
// every peer has acknowledged and this participant's own entry sits at
// the head of its queue.
//
// A Lock is strictly single-loop: Acquire/Release/AddPeer/RemovePeer
// must all be called from coroutines on the loop.Loop the lock was
// constructed against, mirroring rpc.Channel's own concurrency
// discipline (no internal mutex; the event loop serializes access).
package dlock
