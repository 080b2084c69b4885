package sched

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picotask/internal/hal"
	"picotask/internal/hal/sim"
)

type dispatchRig struct {
	s      *Scheduler
	clock  *sim.Clock
	ctl    *sim.Controller
	pin    *sim.Pin
	shared *Shared[hal.Pin]
	latch  *Latch[bool]
	d      *Dispatcher
	log    []string
	lamp   TaskID
}

func newDispatchRig(t *testing.T, opts ...DispatchOption) *dispatchRig {
	t.Helper()
	r := &dispatchRig{}
	r.s, r.clock = newSched(t)
	r.ctl = sim.NewController()
	r.pin = sim.NewPin(0, true)
	r.pin.EnableInterrupt(hal.EdgeLow, r.ctl, hal.IRQBank0)
	r.shared = NewShared[hal.Pin](r.pin, r.ctl, hal.IRQBank0)
	r.latch = NewLatch[bool](r.ctl, hal.IRQBank0)
	r.lamp = mustAdd(t, r.s, NewTask("lamp", false, stepper(&r.log, "lamp")))

	opts = append([]DispatchOption{Latching(r.latch), Signaling(r.lamp)}, opts...)
	r.d = NewDispatcher(r.s, r.clock, r.shared, hal.EdgeLow, opts...)
	r.ctl.Bind(hal.IRQBank0, r.d.Handle)
	r.s.Start()
	return r
}

func TestDispatcherIgnoresSpuriousInvocation(t *testing.T) {
	r := newDispatchRig(t)

	r.d.Handle()
	assert.Equal(t, uint64(1), r.d.Spurious())
	assert.Zero(t, r.d.Handled())

	require.NoError(t, r.s.Poll())
	assert.Empty(t, r.log)
	_, ok := r.latch.Claim()
	assert.False(t, ok)
}

func TestDispatcherClearsLatchesAndSpawns(t *testing.T) {
	r := newDispatchRig(t)
	r.clock.Advance(42)

	r.pin.Drive(false)
	assert.Equal(t, uint64(1), r.d.Handled())
	assert.False(t, r.pin.InterruptStatus(hal.EdgeLow), "flag cleared by the handler")

	ev, ok := r.latch.Claim()
	require.True(t, ok)
	assert.Equal(t, hal.Tick(42), ev.Tick)
	assert.False(t, ev.Data, "level read in the handler")

	require.NoError(t, r.s.Poll())
	assert.Equal(t, []string{"lamp@42"}, r.log)
	assert.Equal(t, StateDone, r.s.State(r.lamp))
}

func TestDispatcherDeferredBehindTaskLock(t *testing.T) {
	r := newDispatchRig(t)
	var trace []string
	r.d.hold = func(hal.Pin) error {
		trace = append(trace, "isr")
		return nil
	}

	require.NoError(t, r.shared.Lock(func(p hal.Pin) error {
		trace = append(trace, "task read")
		r.pin.Drive(false)
		_, err := p.Get()
		trace = append(trace, "task done")
		return err
	}))

	assert.Equal(t, []string{"task read", "task done", "isr"}, trace)
	assert.Equal(t, uint64(1), r.d.Handled())
}

func TestDispatcherReadFailureHaltsScheduler(t *testing.T) {
	r := newDispatchRig(t)
	boom := errors.New("gpio bus error")
	r.pin.FailNextRead(boom)

	r.pin.Drive(false)

	err := r.s.Poll()
	assert.ErrorIs(t, err, ErrPeripheral)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, r.log, "a failed handler does not signal")
}

func TestDispatcherHoldRunsUnderLock(t *testing.T) {
	var heldDuringHold bool
	var r *dispatchRig
	r = newDispatchRig(t, Holding(func(p hal.Pin) error {
		heldDuringHold = r.shared.Held()
		return nil
	}))

	r.pin.Drive(false)
	assert.True(t, heldDuringHold)
	assert.False(t, r.shared.Held())
}
