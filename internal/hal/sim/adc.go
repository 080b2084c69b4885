package sim

import (
	"sync"

	"picotask/internal/hal"
)

// AnalogIn replays a fixed sequence of raw counts, repeating the last one.
type AnalogIn struct {
	mu      sync.Mutex
	samples []uint16
	next    int
	err     error
}

// NewAnalogIn returns a channel that replays samples in order and then
// keeps returning the last one.
func NewAnalogIn(samples ...uint16) *AnalogIn {
	return &AnalogIn{samples: samples}
}

func (a *AnalogIn) Read() (uint16, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		err := a.err
		a.err = nil
		return 0, err
	}
	if len(a.samples) == 0 {
		return 0, nil
	}
	v := a.samples[a.next]
	if a.next < len(a.samples)-1 {
		a.next++
	}
	return v, nil
}

// FailNextRead makes the next Read return err.
func (a *AnalogIn) FailNextRead(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

var _ hal.AnalogIn = (*AnalogIn)(nil)
