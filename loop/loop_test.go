package loop

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunUntilIdle(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var ran bool
	_, err = l.Spawn(func(l *Loop) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, l.Run())
	assert.True(t, ran, "coroutine body never ran")
}

// Scenario S1: two coroutines racing Sleep with different durations wake
// in deadline order, not spawn order.
func TestSleepOrdersByDeadlineNotSpawnOrder(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var order []string
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.Sleep(30 * time.Millisecond); err != nil {
			return err
		}
		order = append(order, "slow")
		return nil
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.Sleep(5 * time.Millisecond); err != nil {
			return err
		}
		order = append(order, "fast")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.Equal(t, []string{"fast", "slow"}, order)
}

// Property 1 (fairness): Yield lets a sibling coroutine interleave.
func TestYieldInterleaves(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var trace []string
	_, err = l.Spawn(func(l *Loop) error {
		trace = append(trace, "a1")
		if err := l.Yield(); err != nil {
			return err
		}
		trace = append(trace, "a2")
		return nil
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		trace = append(trace, "b1")
		if err := l.Yield(); err != nil {
			return err
		}
		trace = append(trace, "b2")
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	require.Len(t, trace, 4)
	// Both "first halves" must run before either "second half".
	firstHalves := map[string]bool{"a1": true, "b1": true}
	assert.True(t, firstHalves[trace[0]] && firstHalves[trace[1]],
		"trace = %v, want both first-halves before any second-half", trace)
}

func TestWaitWakesOnFire(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	ev := NewEvent()
	woke := false
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.Wait(ev); err != nil {
			return err
		}
		woke = true
		return nil
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		ev.Fire()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.True(t, woke, "waiter never woke")
}

// Scenario S3: a coroutine blocked reading one end of a pipe wakes once
// the other end is written to.
func TestIOWaitWakesOnReadability(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var got []byte
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.IOWait(int(r.Fd()), Read); err != nil {
			return err
		}
		buf := make([]byte, 5)
		n, err := r.Read(buf)
		if err != nil {
			return err
		}
		got = buf[:n]
		return nil
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.Sleep(5 * time.Millisecond); err != nil {
			return err
		}
		_, err := w.Write([]byte("hello"))
		return err
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.Equal(t, "hello", string(got))
}

// Scenario S4: two coroutines block on IOWait against two independent
// pipes concurrently; each must wake only from its own fd becoming ready.
func TestConcurrentIOWaitOnDistinctFDs(t *testing.T) {
	r1, w1, err := os.Pipe()
	require.NoError(t, err)
	defer r1.Close()
	defer w1.Close()
	r2, w2, err := os.Pipe()
	require.NoError(t, err)
	defer r2.Close()
	defer w2.Close()

	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var got1, got2 byte
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.IOWait(int(r1.Fd()), Read); err != nil {
			return err
		}
		buf := make([]byte, 1)
		if _, err := r1.Read(buf); err != nil {
			return err
		}
		got1 = buf[0]
		return nil
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.IOWait(int(r2.Fd()), Read); err != nil {
			return err
		}
		buf := make([]byte, 1)
		if _, err := r2.Read(buf); err != nil {
			return err
		}
		got2 = buf[0]
		return nil
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		if _, err := w2.Write([]byte{'2'}); err != nil {
			return err
		}
		if _, err := w1.Write([]byte{'1'}); err != nil {
			return err
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.Equal(t, byte('1'), got1)
	assert.Equal(t, byte('2'), got2)
}

func TestJoinReturnsFinishedResult(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var joinErr error
	var observed bool
	child, err := l.Spawn(func(l *Loop) error {
		return errors.New("boom")
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		joinErr = l.Join(child)
		observed = child.observed
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	require.EqualError(t, joinErr, "boom")
	assert.True(t, observed, "Join should mark the child's error observed")
}

// Property 4: cancelling a coroutine blocked in Sleep
// surfaces ErrCancelled at the next suspension point and terminates it
// with StateCancelled.
func TestCancelWakesBlockedCoroutine(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var sleepErr error
	var child *Coroutine
	child, err = l.Spawn(func(l *Loop) error {
		sleepErr = l.Sleep(time.Hour)
		return sleepErr
	})
	require.NoError(t, err)
	_, err = l.Spawn(func(l *Loop) error {
		if err := l.Sleep(5 * time.Millisecond); err != nil {
			return err
		}
		return l.Cancel(child)
	})
	require.NoError(t, err)

	require.NoError(t, l.Run())
	assert.ErrorIs(t, sleepErr, ErrCancelled)
	assert.Equal(t, StateCancelled, child.State())
}

func TestSelfCancelFails(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var cancelErr error
	_, err = l.Spawn(func(l *Loop) error {
		cancelErr = l.Cancel(l.current)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, l.Run())
	assert.ErrorIs(t, cancelErr, ErrCancelled)
}

func TestRepeatedPingBeforeRunRunsCoroutineOnce(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	var calls int32
	done := make(chan struct{})
	_, err = l.Spawn(func(l *Loop) error {
		atomic.AddInt32(&calls, 1)
		close(done)
		return nil
	})
	require.NoError(t, err)

	// Ten pings issued before Run drains any of them must not disturb
	// scheduling: the spawned coroutine still runs exactly once and Run
	// returns.
	for i := 0; i < 10; i++ {
		l.Ping()
	}
	require.NoError(t, l.Run())
	<-done
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
