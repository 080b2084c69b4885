package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"picotask/internal/hal"
	"picotask/internal/hal/sim"
	"picotask/internal/job"
	"picotask/internal/sched"
)

// Pico-style pin assignment.
const (
	pinButton = 0
	pinRed    = 23
	pinOrange = 24
	pinGreen  = 25
)

var (
	defaultTemp = []uint16{876, 877, 875}
	defaultADC0 = []uint16{2048}
)

type simBoard struct {
	job.Board
	ctl    *sim.Controller
	button *sim.Pin
}

func newBoard(ctl *sim.Controller, clock hal.Clock, cfg sched.Config, log zerolog.Logger) (*simBoard, error) {
	bank := sim.NewBank()
	take := func(num int, initial bool) (*sim.Pin, error) {
		p, err := bank.Take(num, initial)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sched.ErrConfig, err)
		}
		return p, nil
	}

	red, err := take(pinRed, false)
	if err != nil {
		return nil, err
	}
	orange, err := take(pinOrange, false)
	if err != nil {
		return nil, err
	}
	green, err := take(pinGreen, false)
	if err != nil {
		return nil, err
	}
	button, err := take(pinButton, true) // pull-up
	if err != nil {
		return nil, err
	}
	button.EnableInterrupt(hal.EdgeLow, ctl, hal.IRQBank0)

	temp, adc0 := cfg.ADC.Temp, cfg.ADC.Pin
	if len(temp) == 0 {
		temp = defaultTemp
	}
	if len(adc0) == 0 {
		adc0 = defaultADC0
	}

	return &simBoard{
		Board: job.Board{
			Red:    red,
			Orange: orange,
			Green:  green,
			Button: sched.NewShared[hal.Pin](button, ctl, hal.IRQBank0),
			Temp:   sim.NewAnalogIn(temp...),
			ADC0:   sim.NewAnalogIn(adc0...),
			IRQ:    ctl,
			Clock:  clock,
			Log:    log,
		},
		ctl:    ctl,
		button: button,
	}, nil
}

// scriptPresses plays the configured button presses. In virtual time they are
// clock events; in real time each edge fires from its own timer goroutine.
// A handler that spins on the pin needs the release to come from somewhere
// else, so in virtual time the release is armed on the pin itself, one read
// per millisecond held.
func (b *simBoard) scriptPresses(cfg sched.Config, vclock *sim.Clock, spins bool) []*time.Timer {
	var timers []*time.Timer
	for _, p := range cfg.Button {
		at := time.Duration(p.AtMS) * time.Millisecond
		hold := time.Duration(p.HoldMS) * time.Millisecond
		if vclock == nil {
			timers = append(timers,
				time.AfterFunc(at, func() { b.button.Drive(false) }),
				time.AfterFunc(at+hold, func() { b.button.Drive(true) }),
			)
			continue
		}
		holdMS := p.HoldMS
		vclock.At(vclock.Ticks(at), func() {
			if spins {
				b.button.ReleaseAfter(holdMS, true)
			}
			b.button.Drive(false)
		})
		if !spins {
			vclock.At(vclock.Ticks(at+hold), func() { b.button.Drive(true) })
		}
	}
	return timers
}
