package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickClockSleepsUntilDeadline(t *testing.T) {
	c := NewTickClock(time.Millisecond)
	assert.Equal(t, uint32(1000), c.Hz())
	c.Start()
	defer c.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	deadline := c.Now() + 3
	require.NoError(t, c.Sleep(ctx, deadline, true, nil))
	assert.True(t, c.Now().Reached(deadline))
}

func TestTickClockWakeAndStop(t *testing.T) {
	c := NewTickClock(time.Hour)
	c.Start()

	wake := make(chan struct{}, 1)
	wake <- struct{}{}
	require.NoError(t, c.Sleep(context.Background(), 0, false, wake))

	c.Stop()
	c.Stop()
	assert.ErrorIs(t, c.Sleep(context.Background(), 0, false, nil), ErrClockStopped)
}
