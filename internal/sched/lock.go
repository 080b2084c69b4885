package sched

import (
	"sync/atomic"

	"picotask/internal/hal"
)

// Shared guards one peripheral handle used both by tasks and by the handler
// of a single interrupt source. It never blocks: from task context it masks
// the source, and in the handler the source cannot re-enter.
//
// Shared is not a semaphore. There is one running task at a time, so the only
// contention is task versus handler.
type Shared[T any] struct {
	irq  hal.IRQ
	mask hal.Masker
	res  T
	held atomic.Bool
}

// NewShared guards res with the mask of irq, the one source whose handler
// also uses it.
func NewShared[T any](res T, mask hal.Masker, irq hal.IRQ) *Shared[T] {
	return &Shared[T]{irq: irq, mask: mask, res: res}
}

// IRQ returns the interrupt source that shares the resource.
func (s *Shared[T]) IRQ() hal.IRQ { return s.irq }

// Mask returns the masker guarding the source.
func (s *Shared[T]) Mask() hal.Masker { return s.mask }

// Lock runs fn with exclusive access from task context. The interrupt source
// stays masked until fn returns or panics; a raise in between is delivered on
// unmask.
func (s *Shared[T]) Lock(fn func(res T) error) error {
	s.mask.Mask(s.irq)
	defer s.mask.Unmask(s.irq)
	return s.enter(fn)
}

// LockFromISR runs fn with exclusive access from the interrupt handler.
func (s *Shared[T]) LockFromISR(fn func(res T) error) error {
	return s.enter(fn)
}

func (s *Shared[T]) enter(fn func(res T) error) error {
	if !s.held.CompareAndSwap(false, true) {
		panic(invariantf("", "shared resource on %s re-entered", s.irq))
	}
	defer s.held.Store(false)
	return fn(s.res)
}

// Held reports whether some context is inside the critical section.
func (s *Shared[T]) Held() bool { return s.held.Load() }
