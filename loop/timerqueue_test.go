package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueueOrdersByDeadline(t *testing.T) {
	var q timerQueue
	base := time.Now()
	var order []int
	q.schedule(base.Add(30*time.Millisecond), func() error { order = append(order, 3); return nil })
	q.schedule(base.Add(10*time.Millisecond), func() error { order = append(order, 1); return nil })
	q.schedule(base.Add(20*time.Millisecond), func() error { order = append(order, 2); return nil })

	require.NoError(t, q.drain(base.Add(time.Hour)))
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestTimerQueueFIFOTiebreak(t *testing.T) {
	var q timerQueue
	deadline := time.Now()
	var order []int
	for i := 0; i < 4; i++ {
		i := i
		q.schedule(deadline, func() error { order = append(order, i); return nil })
	}
	require.NoError(t, q.drain(deadline))
	assert.Equal(t, []int{0, 1, 2, 3}, order, "equal deadlines must tiebreak FIFO")
}

func TestTimerQueueCancelPrevented(t *testing.T) {
	var q timerQueue
	ran := false
	tok := q.schedule(time.Now(), func() error { ran = true; return nil })
	q.cancel(tok)
	require.NoError(t, q.drain(time.Now().Add(time.Hour)))
	assert.False(t, ran, "cancelled timer fired")
}

func TestTimerQueueDrainOnlyDueEntries(t *testing.T) {
	var q timerQueue
	now := time.Now()
	ranEarly := false
	ranLate := false
	q.schedule(now.Add(-time.Millisecond), func() error { ranEarly = true; return nil })
	q.schedule(now.Add(time.Hour), func() error { ranLate = true; return nil })

	require.NoError(t, q.drain(now))
	assert.True(t, ranEarly, "expected past-due entry to fire")
	assert.False(t, ranLate, "future entry fired early")
	deadline, pending := q.nextDeadline()
	require.True(t, pending, "expected the future entry to remain pending")
	assert.True(t, deadline.Equal(now.Add(time.Hour)), "nextDeadline = %v, want %v", deadline, now.Add(time.Hour))
}

func TestTimerQueueDrainStopsOnError(t *testing.T) {
	var q timerQueue
	now := time.Now()
	secondRan := false
	q.schedule(now, func() error { return ErrCancelled })
	q.schedule(now, func() error { secondRan = true; return nil })

	err := q.drain(now)
	require.ErrorIs(t, err, ErrCancelled)
	assert.False(t, secondRan, "second entry ran despite the first's failure")
}
