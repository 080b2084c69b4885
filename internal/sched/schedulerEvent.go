// internal/sched/schedulerEvent.go

package sched

import "picotask/internal/hal"

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusIdle StatusKind = iota
	StatusEnqueue
	StatusSpawn
	StatusDispatch
	StatusWait
	StatusTimer
	StatusWake
	StatusFinish
	StatusFault
)

// StatusEvent is emitted on every task state change and before each low-power wait.
type StatusEvent struct {
	Tick     hal.Tick
	Kind     StatusKind
	TaskID   TaskID
	Task     string
	Deadline hal.Tick // set for StatusWait and StatusIdle with a pending timer
	Runs     uint64
	Err      error
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusIdle:
		return "Idle"
	case StatusEnqueue:
		return "Enqueued"
	case StatusSpawn:
		return "Spawn"
	case StatusDispatch:
		return "Dispatch"
	case StatusWait:
		return "Wait"
	case StatusTimer:
		return "Timer"
	case StatusWake:
		return "Wake"
	case StatusFinish:
		return "Finish"
	case StatusFault:
		return "Fault"
	default:
		return "Unknown"
	}
}
