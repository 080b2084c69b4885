package sched

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"picotask/internal/hal"
	"picotask/internal/hal/sim"
)

// stepper is a body that waits the given ticks at each resume, then ends.
func stepper(log *[]string, name string, waits ...hal.Tick) func() Body {
	return func() Body {
		i := 0
		return func(c *Context) Action {
			*log = append(*log, fmt.Sprintf("%s@%d", name, c.Now()))
			if i == len(waits) {
				return c.Done()
			}
			w := waits[i]
			i++
			return c.DelayTicks(w)
		}
	}
}

func newSched(t *testing.T, opts ...Option) (*Scheduler, *sim.Clock) {
	t.Helper()
	clock := sim.NewClock(1000, 0)
	return New(clock, opts...), clock
}

func mustAdd(t *testing.T, s *Scheduler, task *Task) TaskID {
	t.Helper()
	id, err := s.Add(task)
	require.NoError(t, err)
	return id
}

func TestSchedulerScriptedOrder(t *testing.T) {
	s, clock := newSched(t)
	var log []string
	mustAdd(t, s, NewTask("A", true, stepper(&log, "A", 500)))
	mustAdd(t, s, NewTask("B", true, stepper(&log, "B", 700)))

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, hal.ErrIdle)
	assert.Equal(t, []string{"A@0", "B@0", "A@500", "B@700"}, log)
	assert.Equal(t, hal.Tick(700), clock.Now())
}

func TestSchedulerEqualDeadlinesFIFO(t *testing.T) {
	s, _ := newSched(t)
	var log []string
	mustAdd(t, s, NewTask("B", true, stepper(&log, "B", 300, 200)))
	mustAdd(t, s, NewTask("A", true, stepper(&log, "A", 500)))

	assert.ErrorIs(t, s.Run(context.Background()), hal.ErrIdle)
	assert.Equal(t, []string{"B@0", "A@0", "B@300", "A@500", "B@500"}, log,
		"A registered its 500 deadline at tick 0, B only at 300")
}

func TestSchedulerTimerFiresOnce(t *testing.T) {
	s, clock := newSched(t)
	var log []string
	id := mustAdd(t, s, NewTask("A", true, stepper(&log, "A", 100, 100)))

	require.NoError(t, s.Poll())
	assert.Equal(t, StateWaiting, s.State(id))

	clock.Advance(100)
	require.NoError(t, s.Poll())
	require.NoError(t, s.Poll())
	assert.Equal(t, []string{"A@0", "A@100"}, log)
	assert.Equal(t, uint64(2), s.Runs(id))
}

func TestSchedulerSignalSpawnsAndWakes(t *testing.T) {
	s, clock := newSched(t)
	var log []string
	lamp := mustAdd(t, s, NewTask("lamp", false, stepper(&log, "lamp", 1000)))

	assert.False(t, s.Signal(lamp), "signals before start are refused")
	s.Start()
	assert.Equal(t, StateIdle, s.State(lamp))

	assert.True(t, s.Signal(lamp))
	assert.True(t, s.Signal(lamp)) // coalesces
	require.NoError(t, s.Poll())
	assert.Equal(t, []string{"lamp@0"}, log)
	assert.Equal(t, StateWaiting, s.State(lamp))

	clock.Advance(100)
	s.Signal(lamp) // wakes early, dropping the wake entry at 1000
	require.NoError(t, s.Poll())
	assert.Equal(t, StateDone, s.State(lamp))
	assert.Equal(t, []string{"lamp@0", "lamp@100"}, log)

	clock.Advance(1000)
	require.NoError(t, s.Poll())
	assert.Len(t, log, 2)

	// a finished task starts over from a fresh body
	s.Signal(lamp)
	require.NoError(t, s.Poll())
	assert.Equal(t, "lamp@1100", log[2])
	assert.Equal(t, StateWaiting, s.State(lamp))
	assert.Equal(t, uint64(2), s.Spawns(lamp), "the early wake is not a spawn")
	assert.Equal(t, uint64(3), s.Runs(lamp))
}

func TestSchedulerSpawnFromTask(t *testing.T) {
	s, _ := newSched(t)
	var log []string
	var spawnErrs []error
	mustAdd(t, s, NewTask("worker", false, stepper(&log, "worker", 10)))
	mustAdd(t, s, NewTask("boss", true, func() Body {
		return func(c *Context) Action {
			spawnErrs = append(spawnErrs, c.Spawn("worker"), c.Spawn("worker"), c.Spawn("boss"))
			return c.Done()
		}
	}))

	require.NoError(t, s.Poll())
	require.Len(t, spawnErrs, 3)
	assert.NoError(t, spawnErrs[0])
	assert.ErrorIs(t, spawnErrs[1], ErrNotSpawnable)
	assert.ErrorIs(t, spawnErrs[2], ErrNotSpawnable)
	assert.Equal(t, []string{"worker@0"}, log)
}

func TestSchedulerAddRules(t *testing.T) {
	s, _ := newSched(t)
	var log []string
	mustAdd(t, s, NewTask("A", true, stepper(&log, "A")))

	_, err := s.Add(NewTask("A", true, stepper(&log, "A")))
	assert.ErrorIs(t, err, ErrConfig)
	_, err = s.Add(NewTask("nobody", true, nil))
	assert.ErrorIs(t, err, ErrConfig)

	s.Start()
	_, err = s.Add(NewTask("late", true, stepper(&log, "late")))
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSchedulerFaults(t *testing.T) {
	boom := errors.New("pin read failed")

	cases := []struct {
		name string
		body Body
		kind error
	}{
		{"peripheral", func(c *Context) Action { return c.Fail(boom) }, ErrPeripheral},
		{"no action", func(c *Context) Action { return Action{} }, ErrInvariant},
		{"panicking fault", func(c *Context) Action { panic(invariantf("", "bad")) }, ErrInvariant},
		{"delay past wrap range", func(c *Context) Action { return c.Delay(30 * 24 * time.Hour) }, ErrInvariant},
		{"ticks past wrap range", func(c *Context) Action { return c.DelayTicks(1 << 31) }, ErrInvariant},
		{"negative delay", func(c *Context) Action { return c.Delay(-time.Second) }, ErrInvariant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newSched(t)
			id := mustAdd(t, s, NewTask("t", true, func() Body { return tc.body }))

			err := s.Run(context.Background())
			require.ErrorIs(t, err, tc.kind)
			var f *Fault
			require.True(t, errors.As(err, &f))
			assert.Equal(t, "t", f.Task)
			assert.Equal(t, StateDone, s.State(id))
		})
	}
}

func TestSchedulerLongDelayNeverFiresEarly(t *testing.T) {
	s := New(sim.NewClock(1_000_000, 0))
	var resumed []hal.Tick
	mustAdd(t, s, NewTask("slow", true, func() Body {
		return func(c *Context) Action {
			resumed = append(resumed, c.Now())
			if len(resumed) == 1 {
				return c.Delay(40 * time.Minute)
			}
			return c.Done()
		}
	}))

	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrInvariant)
	assert.Equal(t, []hal.Tick{0}, resumed)

	s = New(sim.NewClock(1_000_000, 0))
	resumed = nil
	mustAdd(t, s, NewTask("slow", true, func() Body {
		return func(c *Context) Action {
			resumed = append(resumed, c.Now())
			if len(resumed) == 1 {
				return c.Delay(35 * time.Minute)
			}
			return c.Done()
		}
	}))
	assert.ErrorIs(t, s.Run(context.Background()), hal.ErrIdle)
	assert.Equal(t, []hal.Tick{0, 2_100_000_000}, resumed)
}

func TestSchedulerAbortFromInterrupt(t *testing.T) {
	s, clock := newSched(t)
	var log []string
	mustAdd(t, s, NewTask("A", true, stepper(&log, "A", 1000)))
	boom := errors.New("adc overrun")
	clock.At(300, func() { s.Abort(boom) })

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrPeripheral)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, hal.Tick(300), clock.Now())
}

func TestSchedulerStatusStream(t *testing.T) {
	s, _ := newSched(t, WithStatus(64))
	var log []string
	mustAdd(t, s, NewTask("A", true, stepper(&log, "A", 5)))

	assert.ErrorIs(t, s.Run(context.Background()), hal.ErrIdle)

	var kinds []StatusKind
	for ev := range s.StatusChannel() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []StatusKind{
		StatusEnqueue, StatusSpawn, StatusDispatch, StatusWait, StatusIdle,
		StatusTimer, StatusDispatch, StatusFinish, StatusIdle,
	}, kinds)
}

func TestSchedulerContextCancel(t *testing.T) {
	s, _ := newSched(t)
	var log []string
	mustAdd(t, s, NewTask("A", true, stepper(&log, "A", 5)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
	assert.Equal(t, []string{"A@0"}, log)
}

func TestSchedulerTicks(t *testing.T) {
	s := New(sim.NewClock(1_000_000, 0))
	assert.Equal(t, hal.Tick(500_000), s.Ticks(500_000_000))
	assert.Equal(t, uint64(2_400_000_000), s.ticks64(40*time.Minute))
	assert.Equal(t, uint64(3), s.ticks64(3*time.Microsecond+999))
}
