package job

import (
	"time"

	"picotask/internal/hal"
	"picotask/internal/sched"
)

// heartbeatWrap is the last value the heartbeat counter reaches before it
// starts over at zero.
const heartbeatWrap = 100

// Heartbeat toggles led every period and logs a counter that wraps after 100.
func Heartbeat(led hal.Pin, period time.Duration) func() sched.Body {
	return func() sched.Body {
		on, started := false, false
		cnt := 0
		return func(c *sched.Context) sched.Action {
			if started {
				c.Log.Info().Int("cnt", cnt).Msg("heartbeat")
				if cnt == heartbeatWrap {
					cnt = 0
				} else {
					cnt++
				}
			}
			started = true
			on = !on
			if err := led.Set(on); err != nil {
				return c.Fail(err)
			}
			return c.Delay(period)
		}
	}
}

// SwitchBlink walks red on, red off, orange on, orange off, one step per period.
func SwitchBlink(red, orange hal.Pin, period time.Duration) func() sched.Body {
	return func() sched.Body {
		steps := []struct {
			led   hal.Pin
			level bool
		}{
			{red, true}, {red, false}, {orange, true}, {orange, false},
		}
		i := 0
		return func(c *sched.Context) sched.Action {
			st := steps[i]
			i = (i + 1) % len(steps)
			if err := st.led.Set(st.level); err != nil {
				return c.Fail(err)
			}
			return c.Delay(period)
		}
	}
}
