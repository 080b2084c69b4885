package sim

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTaken is returned when a pin is claimed twice.
var ErrTaken = errors.New("pin already taken")

// Bank hands out each pin at most once, like splitting a peripheral block
// into owned pins at boot.
type Bank struct {
	mu    sync.Mutex
	taken map[int]*Pin
}

// NewBank returns a bank with every pin free.
func NewBank() *Bank {
	return &Bank{taken: map[int]*Pin{}}
}

// Take claims pin num with the given initial level.
func (b *Bank) Take(num int, initial bool) (*Pin, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.taken[num]; ok {
		return nil, fmt.Errorf("gpio%d: %w", num, ErrTaken)
	}
	p := NewPin(num, initial)
	b.taken[num] = p
	return p, nil
}
