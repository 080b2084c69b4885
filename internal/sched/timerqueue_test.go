package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picotask/internal/hal"
)

func TestTimerQueueTickReturnsDueInOrder(t *testing.T) {
	q := NewTimerQueue()
	require.NoError(t, q.SleepUntil(1, 100))
	require.NoError(t, q.SleepUntil(2, 50))
	require.NoError(t, q.SleepUntil(3, 100))
	require.NoError(t, q.SleepUntil(4, 200))

	next, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, hal.Tick(50), next)

	assert.Empty(t, q.Tick(49))
	assert.Equal(t, []TaskID{2}, q.Tick(99))
	assert.Equal(t, []TaskID{1, 3}, q.Tick(100), "equal deadlines fire in registration order")
	assert.Empty(t, q.Tick(100), "a consumed entry does not fire again")
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, []TaskID{4}, q.Tick(1000))

	_, ok = q.Next()
	assert.False(t, ok)
}

func TestTimerQueueRejectsSecondEntry(t *testing.T) {
	q := NewTimerQueue()
	require.NoError(t, q.SleepUntil(7, 10))
	err := q.SleepUntil(7, 20)
	assert.ErrorIs(t, err, ErrInvariant)

	d, ok := q.Deadline(7)
	require.True(t, ok)
	assert.Equal(t, hal.Tick(10), d)

	// consumed entries may be registered again
	assert.Equal(t, []TaskID{7}, q.Tick(10))
	assert.NoError(t, q.SleepUntil(7, 20))
}

func TestTimerQueueCancel(t *testing.T) {
	q := NewTimerQueue()
	require.NoError(t, q.SleepUntil(1, 10))
	require.NoError(t, q.SleepUntil(2, 10))

	assert.True(t, q.Cancel(1))
	assert.False(t, q.Cancel(1))
	assert.Equal(t, []TaskID{2}, q.Tick(10))
}

func TestTimerQueueWraparound(t *testing.T) {
	max := ^hal.Tick(0)

	q := NewTimerQueue()
	require.NoError(t, q.SleepUntil(1, max-1))
	require.NoError(t, q.SleepUntil(2, 5)) // after the rollover

	next, _ := q.Next()
	assert.Equal(t, max-1, next, "pre-rollover deadline sorts first")

	assert.Empty(t, q.Tick(max-2))
	assert.Equal(t, []TaskID{1}, q.Tick(max))
	assert.Empty(t, q.Tick(3))
	assert.Equal(t, []TaskID{2}, q.Tick(5))
}

func TestTimerQueueWrapMissedTick(t *testing.T) {
	max := ^hal.Tick(0)
	q := NewTimerQueue()
	require.NoError(t, q.SleepUntil(1, max-1))

	// the counter passed the deadline and rolled over before the next tick
	assert.Equal(t, []TaskID{1}, q.Tick(2))
}
