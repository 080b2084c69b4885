package job

import (
	"time"

	"github.com/rs/zerolog"

	"picotask/internal/hal"
	"picotask/internal/sched"
)

func isLow(button *sched.Shared[hal.Pin]) (low bool, err error) {
	err = button.Lock(func(p hal.Pin) error {
		level, err := p.Get()
		low = !level
		return err
	})
	return low, err
}

// GreenLamp is spawned by the button interrupt. It lights led and polls the
// shared button every period while it reads low, then switches off and ends.
// The poll that first reads high is counted, so a release seen on the N-th
// poll records N.
func GreenLamp(button *sched.Shared[hal.Pin], led hal.Pin, latch *sched.Latch[bool], period time.Duration, presses *Tally) func() sched.Body {
	return func() sched.Body {
		cnt := 0
		low := true
		return func(c *sched.Context) sched.Action {
			if cnt == 0 && latch != nil {
				if ev, ok := latch.Claim(); ok {
					c.Log.Info().Uint32("edge_tick", uint32(ev.Tick)).Uint32("edges", ev.Count).Msg("hello")
				}
			}
			if !low {
				presses.add(cnt)
				if err := led.Set(false); err != nil {
					return c.Fail(err)
				}
				return c.Done()
			}

			var err error
			if low, err = isLow(button); err != nil {
				return c.Fail(err)
			}
			c.Log.Debug().Int("cnt", cnt).Msg("green")
			if err := led.Set(true); err != nil {
				return c.Fail(err)
			}
			cnt++
			return c.Delay(period)
		}
	}
}

// ButtonPoll samples the button every period, lighting led while it is low
// and logging how many polls each press lasted.
func ButtonPoll(button *sched.Shared[hal.Pin], led hal.Pin, period time.Duration, presses *Tally) func() sched.Body {
	return func() sched.Body {
		cnt := 0
		return func(c *sched.Context) sched.Action {
			low, err := isLow(button)
			if err != nil {
				return c.Fail(err)
			}
			if low {
				if cnt == 0 {
					c.Log.Info().Msg("button start")
				}
				cnt++
				err = led.Set(true)
			} else {
				if cnt != 0 {
					c.Log.Info().Int("cnt", cnt).Msg("button end")
					presses.add(cnt)
					cnt = 0
				}
				err = led.Set(false)
			}
			if err != nil {
				return c.Fail(err)
			}
			return c.Delay(period)
		}
	}
}

// HoldCount is a handler body that spins on the pin for as long as it reads
// low, counting iterations, with led lit. It runs with the button locked, so
// the source stays busy for the whole press; this is deliberate and the
// reason the count measures the press length.
func HoldCount(led hal.Pin, log zerolog.Logger, presses *Tally) func(p hal.Pin) error {
	return func(p hal.Pin) error {
		if err := led.Set(true); err != nil {
			return err
		}
		cnt := 0
		for {
			level, err := p.Get()
			if err != nil {
				return err
			}
			if level {
				break
			}
			cnt++
		}
		log.Info().Int("cnt", cnt).Msg("button end")
		presses.add(cnt)
		return led.Set(false)
	}
}
