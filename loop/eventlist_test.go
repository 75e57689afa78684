package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventListFIFOOrder(t *testing.T) {
	var l eventList
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		l.add(func() error {
			order = append(order, i)
			return nil
		})
	}
	require.NoError(t, l.emit())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.True(t, l.empty(), "expected list empty after emit")
}

func TestEventListRemoveUnsubscribes(t *testing.T) {
	var l eventList
	ran := false
	tok := l.add(func() error { ran = true; return nil })
	l.remove(tok)
	require.NoError(t, l.emit())
	assert.False(t, ran, "removed callback should not have run")
}

func TestEventListAddDuringEmitLandsAfter(t *testing.T) {
	var l eventList
	var order []string
	var second token
	l.add(func() error {
		order = append(order, "first")
		second = l.add(func() error {
			order = append(order, "added-during-emit")
			return nil
		})
		return nil
	})
	require.NoError(t, l.emit())
	require.NotNil(t, second, "expected second registration to have happened")
	assert.Equal(t, []string{"first", "added-during-emit"}, order)
}

func TestEventListEmitStopsOnError(t *testing.T) {
	var l eventList
	var ran []int
	l.add(func() error { ran = append(ran, 0); return nil })
	l.add(func() error { ran = append(ran, 1); return ErrCancelled })
	l.add(func() error { ran = append(ran, 2); return nil })
	err := l.emit()
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, []int{0, 1}, ran, "expected emit to stop after the failing callback")
	assert.False(t, l.empty(), "expected the third callback to remain queued after the failure")
}
