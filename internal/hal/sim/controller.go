// Package sim is a deterministic host board: a virtual tick counter, an
// interrupt controller honouring masks, GPIO pins that latch edges, and ADC
// channels. Interrupt handlers run synchronously on the goroutine that raised
// them, which models an interrupt taken at the next instruction boundary.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"picotask/internal/hal"
)

// ErrStorm reports a handler that keeps returning with its source asserted.
var ErrStorm = errors.New("interrupt storm")

const stormLimit = 1024

// Source is something that can keep an interrupt line asserted, such as a pin
// whose status flag was never cleared.
type Source interface {
	Asserted() bool
}

// Controller is a single-core interrupt controller.
type Controller struct {
	mu   sync.Mutex
	cond *sync.Cond

	vectors map[hal.IRQ]func()
	sources map[hal.IRQ][]Source
	masked  map[hal.IRQ]int // nesting depth
	pending map[hal.IRQ]bool
	running map[hal.IRQ]bool

	taken    map[hal.IRQ]uint64
	deferred map[hal.IRQ]uint64
}

// NewController returns a controller with no vectors bound and nothing masked.
func NewController() *Controller {
	c := &Controller{
		vectors:  map[hal.IRQ]func(){},
		sources:  map[hal.IRQ][]Source{},
		masked:   map[hal.IRQ]int{},
		pending:  map[hal.IRQ]bool{},
		running:  map[hal.IRQ]bool{},
		taken:    map[hal.IRQ]uint64{},
		deferred: map[hal.IRQ]uint64{},
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Bind installs the vector for q. It replaces any previous handler.
func (c *Controller) Bind(q hal.IRQ, handler func()) {
	c.mu.Lock()
	c.vectors[q] = handler
	c.mu.Unlock()
}

// Attach registers a source whose assertion re-pends q after each handler run.
func (c *Controller) Attach(q hal.IRQ, src Source) {
	c.mu.Lock()
	c.sources[q] = append(c.sources[q], src)
	c.mu.Unlock()
}

// Mask blocks delivery of q. It waits for an in-flight handler of q to return.
// Masks nest: q stays masked until every Mask has been matched by an Unmask.
func (c *Controller) Mask(q hal.IRQ) {
	c.mu.Lock()
	for c.masked[q] == 0 && c.running[q] {
		c.cond.Wait()
	}
	c.masked[q]++
	c.mu.Unlock()
}

// Unmask drops one level of masking. When the last level goes, q is
// re-enabled and delivered immediately if it became pending.
func (c *Controller) Unmask(q hal.IRQ) {
	c.mu.Lock()
	if c.masked[q] == 0 {
		c.mu.Unlock()
		panic(fmt.Sprintf("unbalanced unmask of %s", q))
	}
	c.masked[q]--
	if c.masked[q] == 0 && c.pending[q] && !c.running[q] {
		c.deliver(q) // unlocks
		return
	}
	c.mu.Unlock()
}

// Raise asserts q. Delivery is deferred while q is masked or already running.
func (c *Controller) Raise(q hal.IRQ) {
	c.mu.Lock()
	if c.masked[q] > 0 || c.running[q] {
		c.pending[q] = true
		c.deferred[q]++
		c.mu.Unlock()
		return
	}
	c.deliver(q)
}

// Masked reports whether q is currently masked.
func (c *Controller) Masked(q hal.IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.masked[q] > 0
}

// Pending reports whether q is waiting for delivery.
func (c *Controller) Pending(q hal.IRQ) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[q]
}

// Stats returns how many times q was taken and how many raises were deferred.
func (c *Controller) Stats(q hal.IRQ) (taken, deferred uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taken[q], c.deferred[q]
}

// deliver runs the handler for q until it is no longer pending. Called with
// c.mu held; returns with it released.
func (c *Controller) deliver(q hal.IRQ) {
	for n := 0; ; n++ {
		if n == stormLimit {
			c.mu.Unlock()
			panic(fmt.Errorf("%w on %s", ErrStorm, q))
		}
		h := c.vectors[q]
		srcs := c.sources[q]
		c.pending[q] = false
		if h == nil {
			// no vector installed: the line is not enabled at the core
			c.mu.Unlock()
			return
		}
		c.running[q] = true
		c.taken[q]++
		c.mu.Unlock()

		h()
		asserted := false
		for _, s := range srcs {
			if s.Asserted() {
				asserted = true
				break
			}
		}

		c.mu.Lock()
		c.running[q] = false
		c.cond.Broadcast()
		if asserted {
			c.pending[q] = true
		}
		if !c.pending[q] || c.masked[q] > 0 {
			c.mu.Unlock()
			return
		}
	}
}
