package sched

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"picotask/internal/hal"
)

// TaskID identifies a task by its position in the scheduler's fixed table.
type TaskID uint64

// State is where a task sits in its life cycle.
type State int

const (
	StateIdle State = iota // declared, never spawned
	StateReady
	StateRunning
	StateWaiting
	StateDone
)

func (st State) String() string {
	switch st {
	case StateIdle:
		return "Idle"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateWaiting:
		return "Waiting"
	case StateDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Body is one resumption of a task. It must return an Action that either
// suspends the task until a deadline or ends it; a body that never returns
// starves every other task.
type Body func(c *Context) Action

type actionKind uint8

const (
	actInvalid actionKind = iota
	actWait
	actDone
	actFail
	actFault
)

// Action is what a body asks the scheduler to do after it returns.
type Action struct {
	kind     actionKind
	deadline hal.Tick
	err      error
}

// Task is one statically declared cooperative task.
type Task struct {
	ID        TaskID
	Name      string
	Autostart bool

	newBody  func() Body // fresh state for every spawn
	body     Body
	state    State
	runs     uint64
	spawns   uint64
	signaled atomic.Bool
}

// NewTask declares a task. newBody is called on each spawn so that a task
// that finished can be spawned again from its initial state.
func NewTask(name string, autostart bool, newBody func() Body) *Task {
	return &Task{
		Name:      name,
		Autostart: autostart,
		newBody:   newBody,
	}
}

// Context is what a body sees of the scheduler while it runs.
type Context struct {
	s    *Scheduler
	task *Task
	Log  zerolog.Logger
}

// Now reads the tick counter.
func (c *Context) Now() hal.Tick { return c.s.clock.Now() }

// maxDelay is the longest distance a wrap-safe deadline can express.
const maxDelay = 1<<31 - 1

// Delay suspends for d measured from the tick counter at the call. A delay
// the tick counter cannot order faults the scheduler.
func (c *Context) Delay(d time.Duration) Action {
	if d < 0 {
		return Action{kind: actFault, err: invariantf(c.task.Name, "negative delay %v", d)}
	}
	return c.delay(c.s.ticks64(d))
}

// DelayTicks suspends for n ticks.
func (c *Context) DelayTicks(n hal.Tick) Action {
	return c.delay(uint64(n))
}

func (c *Context) delay(n uint64) Action {
	if n > maxDelay {
		return Action{kind: actFault, err: invariantf(c.task.Name, "delay of %d ticks exceeds %d", n, maxDelay)}
	}
	return c.WaitUntil(c.Now() + hal.Tick(n))
}

// WaitUntil suspends until the absolute tick t.
func (c *Context) WaitUntil(t hal.Tick) Action {
	return Action{kind: actWait, deadline: t}
}

// Done ends the task. It stays Done until spawned again.
func (c *Context) Done() Action { return Action{kind: actDone} }

// Fail ends the task with a peripheral error, which halts the scheduler.
func (c *Context) Fail(err error) Action { return Action{kind: actFail, err: err} }

// Spawn makes an Idle or Done task Ready. It returns ErrNotSpawnable if
// the task is still live.
func (c *Context) Spawn(name string) error {
	id, ok := c.s.Lookup(name)
	if !ok {
		return invariantf(c.task.Name, "spawn of unknown task %q", name)
	}
	return c.s.spawn(c.s.tasks[id])
}
