package job

import (
	"sync"
	"time"

	"picotask/internal/hal"
	"picotask/internal/sched"
)

// Sample is one pair of raw ADC counts.
type Sample struct {
	Tick hal.Tick
	Temp uint16
	Pin  uint16
}

// Samples collects readings. Safe from any context.
type Samples struct {
	mu   sync.Mutex
	list []Sample
}

func (s *Samples) add(v Sample) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.list = append(s.list, v)
	s.mu.Unlock()
}

// All returns the readings, oldest first.
func (s *Samples) All() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.list...)
}

// Sampler reads the temperature sensor and one ADC pin every period.
func Sampler(temp, pin hal.AnalogIn, period time.Duration, out *Samples) func() sched.Body {
	return func() sched.Body {
		return func(c *sched.Context) sched.Action {
			t, err := temp.Read()
			if err != nil {
				return c.Fail(err)
			}
			a, err := pin.Read()
			if err != nil {
				return c.Fail(err)
			}
			c.Log.Info().Uint16("temperature", t).Uint16("adc", a).Msg("sample")
			out.add(Sample{Tick: c.Now(), Temp: t, Pin: a})
			return c.Delay(period)
		}
	}
}
