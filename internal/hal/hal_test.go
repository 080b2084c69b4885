package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickReachedAcrossWrap(t *testing.T) {
	max := ^Tick(0)

	assert.True(t, Tick(10).Reached(10))
	assert.True(t, Tick(11).Reached(10))
	assert.False(t, Tick(9).Reached(10))

	// deadline just before the rollover, now just after it
	assert.True(t, Tick(2).Reached(max-1))
	assert.False(t, (max - 2).Reached(max-1))
	// deadline after the rollover is not reached from before it
	assert.False(t, (max - 1).Reached(5))
}

func TestTickBefore(t *testing.T) {
	max := ^Tick(0)
	assert.True(t, Tick(1).Before(2))
	assert.False(t, Tick(2).Before(2))
	assert.True(t, max.Before(0))
	assert.False(t, Tick(0).Before(max))
}
