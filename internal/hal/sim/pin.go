package sim

import (
	"sync"

	"picotask/internal/hal"
)

// Pin is a simulated GPIO. Drive changes the level seen from outside the
// chip; Set is the chip driving its own output.
type Pin struct {
	mu      sync.Mutex
	num     int
	level   bool
	enabled map[hal.Edge]bool
	status  map[hal.Edge]bool
	readErr error
	reads   int
	writes  []bool

	releaseIn int
	releaseTo bool

	ctl *Controller
	irq hal.IRQ
}

// NewPin returns pin num at the initial level with no interrupt enabled.
func NewPin(num int, initial bool) *Pin {
	return &Pin{
		num:     num,
		level:   initial,
		enabled: map[hal.Edge]bool{},
		status:  map[hal.Edge]bool{},
	}
}

func (p *Pin) Number() int { return p.num }

// EnableInterrupt routes condition e to interrupt q on ctl.
func (p *Pin) EnableInterrupt(e hal.Edge, ctl *Controller, q hal.IRQ) {
	p.mu.Lock()
	p.enabled[e] = true
	p.ctl, p.irq = ctl, q
	p.mu.Unlock()
	ctl.Attach(q, p)
}

// Drive sets the external level and latches any enabled edge condition.
func (p *Pin) Drive(level bool) {
	p.mu.Lock()
	prev := p.level
	p.level = level
	fire := false
	switch {
	case prev && !level && p.enabled[hal.EdgeLow]:
		p.status[hal.EdgeLow] = true
		fire = true
	case !prev && level && p.enabled[hal.EdgeHigh]:
		p.status[hal.EdgeHigh] = true
		fire = true
	}
	if (p.enabled[hal.LevelLow] && !level) || (p.enabled[hal.LevelHigh] && level) {
		fire = true
	}
	ctl, q := p.ctl, p.irq
	p.mu.Unlock()

	if fire && ctl != nil {
		ctl.Raise(q)
	}
}

func (p *Pin) Get() (bool, error) {
	p.mu.Lock()
	if err := p.readErr; err != nil {
		p.readErr = nil
		p.mu.Unlock()
		return false, err
	}
	p.reads++
	level := p.level
	flip := false
	if p.releaseIn > 0 {
		p.releaseIn--
		flip = p.releaseIn == 0
	}
	p.mu.Unlock()

	if flip {
		p.Drive(p.releaseTo)
	}
	return level, nil
}

// ReleaseAfter drives the pin to level once n more reads have completed. The
// n-th read still observes the old level. It lets a handler or task that
// spins on the pin terminate without another goroutine.
func (p *Pin) ReleaseAfter(n int, level bool) {
	p.mu.Lock()
	p.releaseIn, p.releaseTo = n, level
	p.mu.Unlock()
}

func (p *Pin) Set(level bool) error {
	p.mu.Lock()
	p.level = level
	p.writes = append(p.writes, level)
	p.mu.Unlock()
	return nil
}

func (p *Pin) InterruptStatus(e hal.Edge) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked(e)
}

func (p *Pin) statusLocked(e hal.Edge) bool {
	switch e {
	case hal.LevelLow:
		return p.enabled[e] && !p.level
	case hal.LevelHigh:
		return p.enabled[e] && p.level
	default:
		return p.status[e]
	}
}

// ClearInterrupt clears a latched edge. Level conditions clear only when the
// level changes.
func (p *Pin) ClearInterrupt(e hal.Edge) {
	p.mu.Lock()
	delete(p.status, e)
	p.mu.Unlock()
}

// Asserted reports whether any enabled condition is still pending.
func (p *Pin) Asserted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for e, on := range p.enabled {
		if on && p.statusLocked(e) {
			return true
		}
	}
	return false
}

// FailNextRead makes the next Get return err.
func (p *Pin) FailNextRead(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

// Reads returns the number of successful Get calls.
func (p *Pin) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// Writes returns the levels written with Set, oldest first.
func (p *Pin) Writes() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.writes...)
}

var _ hal.Pin = (*Pin)(nil)
