package sched

import "picotask/internal/hal"

// Event is the snapshot a Latch hands over: the edges seen since the last
// claim collapsed into one record.
type Event[T any] struct {
	First hal.Tick // tick of the first publish in the burst
	Tick  hal.Tick // tick of the latest publish
	Count uint32
	Data  T
}

// Latch passes data from one interrupt source to task context. Publish runs
// only in the handler for irq; Claim masks irq while it takes the value, so a
// claim never sees a half-written event.
type Latch[T any] struct {
	irq  hal.IRQ
	mask hal.Masker

	full      bool
	ev        Event[T]
	coalesced uint64
}

// NewLatch returns an empty latch fed by the handler of irq.
func NewLatch[T any](mask hal.Masker, irq hal.IRQ) *Latch[T] {
	return &Latch[T]{irq: irq, mask: mask}
}

// Publish records v at tick now. An unclaimed value is overwritten and the
// burst count grows.
func (l *Latch[T]) Publish(now hal.Tick, v T) {
	if l.full {
		l.ev.Count++
		l.coalesced++
	} else {
		l.ev = Event[T]{First: now, Count: 1}
		l.full = true
	}
	l.ev.Tick = now
	l.ev.Data = v
}

// Claim takes the latched event, leaving the latch empty.
func (l *Latch[T]) Claim() (Event[T], bool) {
	l.mask.Mask(l.irq)
	defer l.mask.Unmask(l.irq)

	if !l.full {
		return Event[T]{}, false
	}
	ev := l.ev
	l.ev = Event[T]{}
	l.full = false
	return ev, true
}

// Coalesced returns how many publishes landed on an unclaimed event. Task
// context only.
func (l *Latch[T]) Coalesced() uint64 {
	l.mask.Mask(l.irq)
	defer l.mask.Unmask(l.irq)
	return l.coalesced
}
