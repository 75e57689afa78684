package dlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/coropile/cono/loop"
	"github.com/coropile/cono/rpc"
)

// wireUp connects two freshly-made Locks over a socketpair, spawning
// both channels' reader coroutines and registering each as the other's
// sole peer. It returns both channels: their reader coroutines keep the
// loop running until the caller closes them.
func wireUp(t *testing.T, l *loop.Loop, a, b *Lock) []*rpc.Channel {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})

	chA, err := rpc.NewChannel(fds[0])
	require.NoError(t, err)
	chB, err := rpc.NewChannel(fds[1])
	require.NoError(t, err)
	_, err = l.Spawn(chA.Run)
	require.NoError(t, err)
	_, err = l.Spawn(chB.Run)
	require.NoError(t, err)
	a.AddPeer(chA, "request", "release")
	b.AddPeer(chB, "request", "release")
	return []*rpc.Channel{chA, chB}
}

// Property 11 / recursion: k nested Acquire calls on an uncontested
// lock (no peers) require exactly k Release calls before it is
// released, and Release before that returns nil without broadcasting
// anything (there is nothing to broadcast to).
func TestRecursionRequiresMatchingReleases(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	lk := New(1)
	var acquireErr, releaseErr [3]error
	_, err = l.Spawn(func(l *loop.Loop) error {
		for i := 0; i < 3; i++ {
			acquireErr[i] = lk.Acquire(l)
		}
		for i := 0; i < 3; i++ {
			require.NotZerof(t, lk.recursion, "recursion reached zero after %d releases, want 3", i)
			releaseErr[i] = lk.Release(l)
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, l.Run())
	for i, err := range acquireErr {
		assert.NoErrorf(t, err, "acquire %d", i)
	}
	for i, err := range releaseErr {
		assert.NoErrorf(t, err, "release %d", i)
	}
	assert.Zero(t, lk.recursion)
	assert.ErrorIs(t, lk.Release(nil), ErrAssert)
}

// S9 / properties 9 & 10: three participants, all fully peered, call
// Acquire simultaneously and repeatedly. At most one ever holds the
// lock at a time (safety), every Acquire eventually succeeds
// (liveness), and the total number of acquires equals the total number
// of releases.
func TestThreePeerLockSafetyAndLiveness(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	locks := []*Lock{New(1), New(2), New(3)}
	var chans []*rpc.Channel
	chans = append(chans, wireUp(t, l, locks[0], locks[1])...)
	chans = append(chans, wireUp(t, l, locks[0], locks[2])...)
	chans = append(chans, wireUp(t, l, locks[1], locks[2])...)

	const rounds = 25
	var heldBy int
	var acquires, releases int
	var finished int

	for i, lk := range locks {
		i, lk := i, lk
		_, err := l.Spawn(func(l *loop.Loop) error {
			defer func() { finished++ }()
			for r := 0; r < rounds; r++ {
				if err := lk.Acquire(l); err != nil {
					return err
				}
				acquires++
				require.Zerof(t, heldBy, "lock %d acquired while %d still held it", i, heldBy)
				heldBy = i + 1
				if err := l.Yield(); err != nil {
					return err
				}
				heldBy = 0
				releases++
				if err := lk.Release(l); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoErrorf(t, err, "Spawn participant %d", i)
	}

	// Once every participant is done, close the channels so their reader
	// coroutines end and Run can return.
	_, err = l.Spawn(func(l *loop.Loop) error {
		for finished < len(locks) {
			if err := l.Yield(); err != nil {
				return err
			}
		}
		for _, ch := range chans {
			_ = ch.Close(l)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.Equal(t, rounds*len(locks), acquires)
	assert.Equal(t, acquires, releases, "releases should match acquires")
}

// Loss of a peer mid-request broadcast is treated as full failure, and
// the acquirer compensates with a release broadcast rather than being
// left holding a half-acquired state.
func TestAcquireFailsWhenPeerUnreachable(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fds[1])

	ch, err := rpc.NewChannel(fds[0])
	require.NoError(t, err)
	// Close the peer end immediately: the channel's reader will observe
	// EOF/closed-peer behavior as soon as it is driven, so any call
	// against it fails.
	require.NoError(t, unix.Close(fds[1]))
	_, err = l.Spawn(ch.Run)
	require.NoError(t, err)

	lk := New(1)
	lk.AddPeer(ch, "request", "release")

	var acquireErr error
	_, err = l.Spawn(func(l *loop.Loop) error {
		acquireErr = lk.Acquire(l)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, l.Run())
	assert.Error(t, acquireErr, "Acquire succeeded against an unreachable peer")
	assert.False(t, lk.requested, "lock left REQUESTED after a failed broadcast")
}

// Close cancels a blocked Acquire.
func TestCloseCancelsBlockedAcquire(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	locks := []*Lock{New(1), New(2)}
	chans := wireUp(t, l, locks[0], locks[1])

	// Second participant holds the lock first so the first blocks. The
	// first only starts its Acquire once the second holds the lock:
	// started together, both requests carry time 1 and the (time, pid)
	// order would grant the lock to pid 1.
	secondHolds := false
	_, err = l.Spawn(func(l *loop.Loop) error {
		if err := locks[1].Acquire(l); err != nil {
			return err
		}
		secondHolds = true
		return nil
	})
	require.NoError(t, err)

	var blockedErr error
	_, err = l.Spawn(func(l *loop.Loop) error {
		for !secondHolds {
			if err := l.Yield(); err != nil {
				return err
			}
		}
		blockedErr = locks[0].Acquire(l)
		return nil
	})
	require.NoError(t, err)

	_, err = l.Spawn(func(l *loop.Loop) error {
		for !secondHolds {
			if err := l.Yield(); err != nil {
				return err
			}
		}
		if err := l.Sleep(5 * time.Millisecond); err != nil {
			return err
		}
		locks[0].Close()
		// Close the channels too, so their reader coroutines end and Run
		// can return.
		for _, ch := range chans {
			_ = ch.Close(l)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.ErrorIs(t, blockedErr, ErrCancelled)
}
