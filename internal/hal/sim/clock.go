package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"picotask/internal/hal"
)

// ErrHorizon is returned by Sleep once virtual time reaches the horizon.
var ErrHorizon = errors.New("simulation horizon reached")

type event struct {
	at hal.Tick
	fn func()
}

// Clock is a virtual tick counter. Time only moves inside Sleep or Advance,
// jumping straight to the next deadline or scripted event.
type Clock struct {
	mu      sync.Mutex
	now     hal.Tick
	hz      uint32
	events  []event // ordered by distance from now, then insertion
	horizon hal.Tick
	bounded bool
}

// NewClock returns a virtual counter at start ticking hz times a second.
// hz of zero means 1 MHz.
func NewClock(hz uint32, start hal.Tick) *Clock {
	if hz == 0 {
		hz = 1_000_000
	}
	return &Clock{now: start, hz: hz}
}

func (c *Clock) Now() hal.Tick {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Hz() uint32 { return c.hz }

// Ticks converts d to ticks at the clock rate.
func (c *Clock) Ticks(d time.Duration) hal.Tick {
	return hal.Tick(uint64(d) * uint64(c.hz) / uint64(time.Second))
}

// SetHorizon bounds the run: time never moves past t.
func (c *Clock) SetHorizon(t hal.Tick) {
	c.mu.Lock()
	c.horizon, c.bounded = t, true
	c.mu.Unlock()
}

// At schedules fn to run when virtual time reaches t. Past ticks run at the
// next opportunity.
func (c *Clock) At(t hal.Tick, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.now) {
		t = c.now
	}
	off := uint32(t - c.now)
	i := len(c.events)
	for i > 0 && uint32(c.events[i-1].at-c.now) > off {
		i--
	}
	c.events = append(c.events, event{})
	copy(c.events[i+1:], c.events[i:])
	c.events[i] = event{at: t, fn: fn}
}

// After schedules fn n ticks from now.
func (c *Clock) After(n hal.Tick, fn func()) {
	c.At(c.Now()+n, fn)
}

// Advance moves time forward n ticks, firing scripted events on the way.
func (c *Clock) Advance(n hal.Tick) {
	target := c.Now() + n
	for {
		fn, ok := c.popDue(target)
		if !ok {
			break
		}
		fn()
	}
	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// popDue removes the first event at or before limit and moves time to it.
func (c *Clock) popDue(limit hal.Tick) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 || limit.Before(c.events[0].at) {
		return nil, false
	}
	ev := c.events[0]
	c.events = c.events[1:]
	c.now = ev.at
	return ev.fn, true
}

// Sleep implements hal.Clock.
func (c *Clock) Sleep(ctx context.Context, deadline hal.Tick, hasDeadline bool, wake <-chan struct{}) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-wake:
			return nil
		default:
		}

		c.mu.Lock()
		now := c.now
		if hasDeadline && now.Reached(deadline) {
			c.mu.Unlock()
			return nil
		}
		limit, bounded := deadline, hasDeadline
		if c.bounded && (!bounded || c.horizon.Before(limit)) {
			limit, bounded = c.horizon, true
		}
		if len(c.events) > 0 && (!bounded || !limit.Before(c.events[0].at)) {
			ev := c.events[0]
			c.events = c.events[1:]
			c.now = ev.at
			c.mu.Unlock()
			ev.fn()
			continue
		}
		if !bounded {
			c.mu.Unlock()
			return hal.ErrIdle
		}
		c.now = limit
		atHorizon := c.bounded && limit == c.horizon && (!hasDeadline || c.horizon.Before(deadline))
		c.mu.Unlock()
		if atHorizon {
			return ErrHorizon
		}
		return nil
	}
}

var _ hal.Clock = (*Clock)(nil)
