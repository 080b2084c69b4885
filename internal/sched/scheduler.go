// internal/sched/scheduler.go

package sched

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/emirpasic/gods/queues/linkedlistqueue"
	"github.com/rs/zerolog"

	"picotask/internal/hal"
)

// Scheduler runs a fixed set of cooperative tasks on one execution context.
// Only Signal and Abort may be called from interrupt handlers or other
// goroutines; everything else belongs to the goroutine that calls Run or Poll.
type Scheduler struct {
	clock   hal.Clock
	log     zerolog.Logger
	tasks   []*Task
	byName  map[string]TaskID
	ready   *linkedlistqueue.Queue // *Task, FIFO
	timers  *TimerQueue
	started bool

	// interrupt side
	inbox    chan TaskID   // at most one entry per task, see Task.signaled
	doorbell chan struct{} // wakes the low-power wait
	fault    atomic.Pointer[Fault]
	frozen   atomic.Bool

	statusCh chan StatusEvent
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the diagnostic sink.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// WithStatus enables the status stream with the given buffer. The stream is
// closed when Run returns, and it must be drained.
func WithStatus(buffer int) Option {
	return func(s *Scheduler) { s.statusCh = make(chan StatusEvent, buffer) }
}

// New creates a Scheduler reading time from clock.
func New(clock hal.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    clock,
		log:      zerolog.Nop(),
		byName:   make(map[string]TaskID),
		ready:    linkedlistqueue.New(),
		timers:   NewTimerQueue(),
		doorbell: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StatusChannel exposes the read-only event stream, nil unless WithStatus was given.
func (s *Scheduler) StatusChannel() <-chan StatusEvent { return s.statusCh }

// Add declares a task. The task table is fixed once the scheduler starts.
func (s *Scheduler) Add(t *Task) (TaskID, error) {
	if s.frozen.Load() {
		return 0, fmt.Errorf("%w: add %q after start", ErrConfig, t.Name)
	}
	if t.newBody == nil {
		return 0, fmt.Errorf("%w: task %q has no body", ErrConfig, t.Name)
	}
	if _, dup := s.byName[t.Name]; dup {
		return 0, fmt.Errorf("%w: task %q already exists", ErrConfig, t.Name)
	}
	t.ID = TaskID(len(s.tasks))
	t.state = StateIdle
	s.tasks = append(s.tasks, t)
	s.byName[t.Name] = t.ID
	s.emit(StatusEvent{Kind: StatusEnqueue, TaskID: t.ID, Task: t.Name})
	return t.ID, nil
}

// Lookup finds a task by name.
func (s *Scheduler) Lookup(name string) (TaskID, bool) {
	id, ok := s.byName[name]
	return id, ok
}

// State returns the state of task id. Scheduler goroutine only.
func (s *Scheduler) State(id TaskID) State {
	if int(id) >= len(s.tasks) {
		return StateIdle
	}
	return s.tasks[id].state
}

// Runs returns how many times task id has been resumed. Scheduler goroutine only.
func (s *Scheduler) Runs(id TaskID) uint64 {
	if int(id) >= len(s.tasks) {
		return 0
	}
	return s.tasks[id].runs
}

// Spawns returns how many times task id has been spawned. Scheduler goroutine only.
func (s *Scheduler) Spawns(id TaskID) uint64 {
	if int(id) >= len(s.tasks) {
		return 0
	}
	return s.tasks[id].spawns
}

// Ticks converts d to ticks at the clock rate.
func (s *Scheduler) Ticks(d time.Duration) hal.Tick {
	return hal.Tick(s.ticks64(d))
}

func (s *Scheduler) ticks64(d time.Duration) uint64 {
	hz := uint64(s.clock.Hz())
	n := uint64(d)
	return n/uint64(time.Second)*hz + n%uint64(time.Second)*hz/uint64(time.Second)
}

// Signal asks for task id to be spawned if it is Idle or Done, or woken early
// if it is Waiting. It never blocks and may be called from an interrupt
// handler. Repeated signals before the scheduler sees the first coalesce.
func (s *Scheduler) Signal(id TaskID) bool {
	if !s.frozen.Load() || int(id) >= len(s.tasks) {
		return false
	}
	t := s.tasks[id]
	if t.signaled.CompareAndSwap(false, true) {
		s.inbox <- id
	}
	s.ring()
	return true
}

// Abort stops the scheduler with err at its next step. Any context.
func (s *Scheduler) Abort(err error) {
	f, ok := err.(*Fault)
	if !ok {
		f = &Fault{Kind: ErrPeripheral, Msg: "interrupt handler", Err: err}
	}
	s.fault.CompareAndSwap(nil, f)
	s.ring()
}

func (s *Scheduler) ring() {
	select {
	case s.doorbell <- struct{}{}:
	default:
	}
}

// Start freezes the task table and makes autostart tasks Ready in
// declaration order. Run and Poll call it.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	s.inbox = make(chan TaskID, len(s.tasks))
	s.frozen.Store(true)
	for _, t := range s.tasks {
		if t.Autostart {
			_ = s.spawn(t)
		}
	}
}

// Run drives the task set until ctx ends, a task faults, or the clock reports
// nothing more can happen.
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		if s.statusCh != nil {
			close(s.statusCh)
		}
	}()

	s.Start()
	for {
		if err := s.Poll(); err != nil {
			return err
		}
		next, ok := s.timers.Next()
		s.emit(StatusEvent{Tick: s.clock.Now(), Kind: StatusIdle, Deadline: next})
		if err := s.clock.Sleep(ctx, next, ok, s.doorbell); err != nil {
			if errors.Is(err, hal.ErrIdle) {
				s.log.Debug().Msg("no timers pending and nothing can raise an interrupt")
			}
			return err
		}
	}
}

// Poll takes pending signals and expired timers, then resumes Ready tasks
// oldest first until none is left.
func (s *Scheduler) Poll() error {
	s.Start()
	for {
		if f := s.fault.Load(); f != nil {
			return s.halt(f)
		}
		s.drain()
		s.expire(s.clock.Now())

		v, ok := s.ready.Dequeue()
		if !ok {
			return nil
		}
		if f := s.resume(v.(*Task)); f != nil {
			return s.halt(f)
		}
	}
}

func (s *Scheduler) halt(f *Fault) error {
	s.emit(StatusEvent{Tick: s.clock.Now(), Kind: StatusFault, Task: f.Task, Err: f})
	s.log.Error().Err(f).Msg("scheduler halted")
	return f
}

func (s *Scheduler) drain() {
	for {
		select {
		case id := <-s.inbox:
			t := s.tasks[id]
			t.signaled.Store(false)
			switch t.state {
			case StateIdle, StateDone:
				_ = s.spawn(t)
			case StateWaiting:
				s.timers.Cancel(id)
				s.makeReady(t, StatusWake)
			}
		default:
			return
		}
	}
}

func (s *Scheduler) expire(now hal.Tick) {
	for _, id := range s.timers.Tick(now) {
		s.makeReady(s.tasks[id], StatusTimer)
	}
}

func (s *Scheduler) spawn(t *Task) error {
	if t.state != StateIdle && t.state != StateDone {
		return fmt.Errorf("%w: %s is %s", ErrNotSpawnable, t.Name, t.state)
	}
	t.body = t.newBody()
	t.spawns++
	s.makeReady(t, StatusSpawn)
	return nil
}

func (s *Scheduler) makeReady(t *Task, kind StatusKind) {
	t.state = StateReady
	s.ready.Enqueue(t)
	s.emit(StatusEvent{Tick: s.clock.Now(), Kind: kind, TaskID: t.ID, Task: t.Name, Runs: t.runs})
}

// resume runs one step of t and files it according to the returned action.
func (s *Scheduler) resume(t *Task) (f *Fault) {
	t.state = StateRunning
	t.runs++
	s.emit(StatusEvent{Tick: s.clock.Now(), Kind: StatusDispatch, TaskID: t.ID, Task: t.Name, Runs: t.runs})

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rf, ok := r.(*Fault)
		if !ok {
			panic(r)
		}
		if rf.Task == "" {
			rf.Task = t.Name
		}
		t.state = StateDone
		f = rf
	}()

	c := &Context{s: s, task: t, Log: s.log.With().Str("task", t.Name).Logger()}
	act := t.body(c)

	switch act.kind {
	case actWait:
		if err := s.timers.SleepUntil(t.ID, act.deadline); err != nil {
			t.state = StateDone
			rf := err.(*Fault)
			rf.Task = t.Name
			return rf
		}
		t.state = StateWaiting
		s.emit(StatusEvent{Tick: s.clock.Now(), Kind: StatusWait, TaskID: t.ID, Task: t.Name, Deadline: act.deadline, Runs: t.runs})
	case actDone:
		t.state = StateDone
		t.body = nil
		s.emit(StatusEvent{Tick: s.clock.Now(), Kind: StatusFinish, TaskID: t.ID, Task: t.Name, Runs: t.runs})
	case actFail:
		t.state = StateDone
		t.body = nil
		return &Fault{Kind: ErrPeripheral, Task: t.Name, Err: act.err}
	case actFault:
		t.state = StateDone
		t.body = nil
		return act.err.(*Fault)
	default:
		t.state = StateDone
		return invariantf(t.Name, "body returned without suspending")
	}
	return nil
}

func (s *Scheduler) emit(ev StatusEvent) {
	if s.statusCh != nil {
		s.statusCh <- ev
	}
}
