package sched

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig means a one-time capability or setting could not be
	// established. The task set cannot start.
	ErrConfig = errors.New("configuration error")
	// ErrPeripheral is a failed pin or ADC operation. It halts the system.
	ErrPeripheral = errors.New("peripheral failure")
	// ErrInvariant is a programming error such as a second wake entry for a
	// waiting task or a re-entered shared resource.
	ErrInvariant = errors.New("invariant violation")
	// ErrNotSpawnable is returned when spawning a task that is still live.
	ErrNotSpawnable = errors.New("task already spawned")
)

// Fault is a fatal error attributed to a task or an interrupt handler.
type Fault struct {
	Kind error
	Task string
	Msg  string
	Err  error
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	s := f.Kind.Error()
	if f.Task != "" {
		s += ": task " + f.Task
	}
	if f.Msg != "" {
		s += ": " + f.Msg
	}
	if f.Err != nil {
		s += ": " + f.Err.Error()
	}
	return s
}

func (f *Fault) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

func invariantf(task, format string, args ...any) *Fault {
	return &Fault{Kind: ErrInvariant, Task: task, Msg: fmt.Sprintf(format, args...)}
}
