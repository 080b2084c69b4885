// Package job holds the board demos as task bodies for the cooperative
// scheduler, and wires them to a board.
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"picotask/internal/hal"
	"picotask/internal/sched"
)

// Binder installs interrupt vectors.
type Binder interface {
	Bind(q hal.IRQ, handler func())
}

// Board is the set of peripherals the demos use: three LEDs, a pull-up button
// on bank 0 shared with its interrupt handler, and two ADC channels.
type Board struct {
	Red, Orange, Green hal.Pin
	Button             *sched.Shared[hal.Pin]
	Temp, ADC0         hal.AnalogIn
	IRQ                Binder
	Clock              hal.Clock
	Log                zerolog.Logger
}

// Tally records one count per finished press or run. Safe from any context.
type Tally struct {
	mu     sync.Mutex
	counts []int
}

func (t *Tally) add(n int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.counts = append(t.counts, n)
	t.mu.Unlock()
}

// Counts returns the recorded counts, oldest first.
func (t *Tally) Counts() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.counts...)
}

// App is an installed demo.
type App struct {
	Demo       string
	Tasks      map[string]sched.TaskID
	Dispatcher *sched.Dispatcher
	Latch      *sched.Latch[bool]
	Presses    *Tally // per press: polls by the lamp, iterations in the handler, or poll ticks
	Samples    *Samples
}

const (
	blinkPeriod  = 500 * time.Millisecond
	lampPeriod   = 100 * time.Millisecond
	buttonPeriod = time.Millisecond
	adcPeriod    = time.Second
)

// Install declares the tasks of demo on s and binds its interrupt vectors.
func Install(demo string, s *sched.Scheduler, b *Board) (*App, error) {
	app := &App{
		Demo:    demo,
		Tasks:   map[string]sched.TaskID{},
		Presses: &Tally{},
	}
	add := func(t *sched.Task) error {
		id, err := s.Add(t)
		if err != nil {
			return err
		}
		app.Tasks[t.Name] = id
		return nil
	}

	switch demo {
	case "heartbeat":
		app.Latch = sched.NewLatch[bool](b.Button.Mask(), b.Button.IRQ())
		if err := add(sched.NewTask("red", true, Heartbeat(b.Red, time.Second))); err != nil {
			return nil, err
		}
		if err := add(sched.NewTask("orange", true, Heartbeat(b.Orange, 700*time.Millisecond))); err != nil {
			return nil, err
		}
		if err := add(sched.NewTask("green", false, GreenLamp(b.Button, b.Green, app.Latch, lampPeriod, app.Presses))); err != nil {
			return nil, err
		}
		app.Dispatcher = sched.NewDispatcher(s, b.Clock, b.Button, hal.EdgeLow,
			sched.Latching(app.Latch),
			sched.Signaling(app.Tasks["green"]),
			sched.DispatchLogger(b.Log),
		)
	case "switch-blink":
		if err := add(sched.NewTask("switch-blink", true, SwitchBlink(b.Red, b.Orange, blinkPeriod))); err != nil {
			return nil, err
		}
		if err := add(sched.NewTask("green", true, ButtonPoll(b.Button, b.Green, buttonPeriod, app.Presses))); err != nil {
			return nil, err
		}
	case "blink-irq":
		if err := add(sched.NewTask("switch-blink", true, SwitchBlink(b.Red, b.Orange, blinkPeriod))); err != nil {
			return nil, err
		}
		app.Dispatcher = sched.NewDispatcher(s, b.Clock, b.Button, hal.EdgeLow,
			sched.Holding(HoldCount(b.Green, b.Log, app.Presses)),
			sched.DispatchLogger(b.Log),
		)
	case "button-poll":
		if err := add(sched.NewTask("red", true, ButtonPoll(b.Button, b.Red, buttonPeriod, app.Presses))); err != nil {
			return nil, err
		}
	case "adc":
		app.Samples = &Samples{}
		if err := add(sched.NewTask("adc", true, Sampler(b.Temp, b.ADC0, adcPeriod, app.Samples))); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown demo %q", sched.ErrConfig, demo)
	}

	if app.Dispatcher != nil {
		if b.IRQ == nil {
			return nil, fmt.Errorf("%w: demo %q needs an interrupt controller", sched.ErrConfig, demo)
		}
		b.IRQ.Bind(b.Button.IRQ(), app.Dispatcher.Handle)
	}
	return app, nil
}
