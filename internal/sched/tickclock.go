// internal/sched/tickclock.go

package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"picotask/internal/hal"
)

// ErrClockStopped is returned by Sleep after Stop.
var ErrClockStopped = errors.New("tick clock stopped")

// TickClock is a wall-clock tick source: one tick per interval.
type TickClock struct {
	ch       chan struct{} // coalesced tick notifications
	count    atomic.Uint32
	stop     chan struct{}
	once     sync.Once
	interval time.Duration
}

// NewTickClock creates a clock but does not start it.
func NewTickClock(interval time.Duration) *TickClock {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &TickClock{
		ch:       make(chan struct{}, 1),
		stop:     make(chan struct{}),
		interval: interval,
	}
}

// Start begins counting.
func (c *TickClock) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.count.Add(1)
				select {
				case c.ch <- struct{}{}:
				default:
				}
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop signals the clock to stop counting. Safe to call more than once.
func (c *TickClock) Stop() {
	c.once.Do(func() { close(c.stop) })
}

// Now returns the current tick count atomically.
func (c *TickClock) Now() hal.Tick { return hal.Tick(c.count.Load()) }

// Hz is exact only for intervals that divide one second.
func (c *TickClock) Hz() uint32 { return uint32(time.Second / c.interval) }

// Sleep implements hal.Clock.
func (c *TickClock) Sleep(ctx context.Context, deadline hal.Tick, hasDeadline bool, wake <-chan struct{}) error {
	for {
		if hasDeadline && c.Now().Reached(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return ErrClockStopped
		case <-wake:
			return nil
		case <-c.ch:
		}
	}
}

var _ hal.Clock = (*TickClock)(nil)
