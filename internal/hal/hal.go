// Package hal describes the board capabilities the scheduler consumes.
// Everything here is assumed to be initialised before the scheduler starts.
package hal

import (
	"context"
	"errors"
)

// Tick is one unit of the monotonic hardware counter. It wraps at 2^32.
type Tick uint32

// Reached reports whether deadline d is at or before t, treating the
// counter as a ring. Valid while the two values are less than 2^31 ticks apart.
func (t Tick) Reached(d Tick) bool { return int32(t-d) >= 0 }

// Before reports whether t comes strictly before u on the ring.
func (t Tick) Before(u Tick) bool { return int32(t-u) < 0 }

// ErrIdle is returned by Clock.Sleep when nothing can ever wake the caller.
var ErrIdle = errors.New("idle forever")

// Clock is the monotonic tick source. Now must be readable with interrupts masked.
type Clock interface {
	Now() Tick
	// Hz is the fixed tick rate.
	Hz() uint32
	// Sleep parks the caller (low-power wait) until the deadline, when one is
	// given, or until wake is signalled, whichever happens first.
	Sleep(ctx context.Context, deadline Tick, hasDeadline bool, wake <-chan struct{}) error
}

// IRQ identifies one interrupt source.
type IRQ uint8

const (
	IRQTimer IRQ = iota
	IRQBank0
	IRQADC
)

func (q IRQ) String() string {
	switch q {
	case IRQTimer:
		return "TIMER_IRQ_0"
	case IRQBank0:
		return "IO_IRQ_BANK0"
	case IRQADC:
		return "ADC_IRQ_FIFO"
	default:
		return "IRQ?"
	}
}

// Masker masks and unmasks a single interrupt source by identity.
// Mask must not return while a handler for the same source is executing.
type Masker interface {
	Mask(q IRQ)
	Unmask(q IRQ)
}

// Edge is a condition a pin can latch into its interrupt-pending flag.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeLow
	EdgeHigh
	LevelLow
	LevelHigh
)

func (e Edge) String() string {
	switch e {
	case EdgeLow:
		return "EdgeLow"
	case EdgeHigh:
		return "EdgeHigh"
	case LevelLow:
		return "LevelLow"
	case LevelHigh:
		return "LevelHigh"
	default:
		return "None"
	}
}

// Pin is one binary digital input/output.
type Pin interface {
	Number() int
	Get() (bool, error)
	Set(level bool) error
	// InterruptStatus reports whether the configured condition is pending.
	InterruptStatus(e Edge) bool
	ClearInterrupt(e Edge)
}

// AnalogIn is one ADC channel returning raw counts.
type AnalogIn interface {
	Read() (uint16, error)
}
