package sched

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"picotask/internal/hal"
)

// Dispatcher is the interrupt vector for one pin condition. It checks the
// pin's status flag under the shared lock, clears it, optionally latches the
// level and runs a hold function, then signals its target tasks.
//
// Handle never waits on anything. A hold function runs with the pin locked and
// the source busy; it is where a handler may deliberately spin on the pin.
type Dispatcher struct {
	s     *Scheduler
	clock hal.Clock
	pin   *Shared[hal.Pin]
	edge  hal.Edge
	log   zerolog.Logger

	latch   *Latch[bool]
	hold    func(p hal.Pin) error
	targets []TaskID

	handled  atomic.Uint64
	spurious atomic.Uint64
}

// DispatchOption configures a Dispatcher.
type DispatchOption func(*Dispatcher)

// Latching publishes the pin level seen by each handled interrupt to l.
func Latching(l *Latch[bool]) DispatchOption {
	return func(d *Dispatcher) { d.latch = l }
}

// Holding runs fn inside the handler after the flag is cleared.
func Holding(fn func(p hal.Pin) error) DispatchOption {
	return func(d *Dispatcher) { d.hold = fn }
}

// Signaling names the tasks to spawn or wake on each handled interrupt.
func Signaling(ids ...TaskID) DispatchOption {
	return func(d *Dispatcher) { d.targets = append(d.targets, ids...) }
}

// DispatchLogger sets the handler's logger.
func DispatchLogger(l zerolog.Logger) DispatchOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher handles edge on pin, stamping events with clock and
// signalling tasks on s.
func NewDispatcher(s *Scheduler, clock hal.Clock, pin *Shared[hal.Pin], edge hal.Edge, opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{
		s:     s,
		clock: clock,
		pin:   pin,
		edge:  edge,
		log:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle is the interrupt callback.
func (d *Dispatcher) Handle() {
	fired := false
	err := d.pin.LockFromISR(func(p hal.Pin) error {
		if !p.InterruptStatus(d.edge) {
			return nil
		}
		fired = true
		p.ClearInterrupt(d.edge)

		if d.latch != nil {
			level, err := p.Get()
			if err != nil {
				return err
			}
			d.latch.Publish(d.clock.Now(), level)
		}
		if d.hold != nil {
			return d.hold(p)
		}
		return nil
	})
	if !fired {
		d.spurious.Add(1)
		return
	}
	d.handled.Add(1)
	if err != nil {
		d.log.Error().Err(err).Str("irq", d.pin.IRQ().String()).Msg("handler failed")
		d.s.Abort(&Fault{Kind: ErrPeripheral, Msg: d.pin.IRQ().String(), Err: err})
		return
	}
	d.log.Debug().Str("irq", d.pin.IRQ().String()).Str("edge", d.edge.String()).Msg("interrupt")
	for _, id := range d.targets {
		d.s.Signal(id)
	}
}

// Handled returns the number of interrupts with the flag set.
func (d *Dispatcher) Handled() uint64 { return d.handled.Load() }

// Spurious returns the number of invocations that found no flag.
func (d *Dispatcher) Spurious() uint64 { return d.spurious.Load() }
