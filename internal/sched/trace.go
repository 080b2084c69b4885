package sched

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Tracer turns the status stream into log lines and, optionally, CSV rows.
type Tracer struct {
	log      zerolog.Logger
	hz       uint32
	ShowIdle bool

	csvCloser io.Closer
	csvWriter *csv.Writer
	ranTotals map[TaskID]uint64 // dispatches per task
}

// NewTracer logs status events to log, converting ticks at hz to milliseconds.
func NewTracer(log zerolog.Logger, hz uint32) *Tracer {
	if hz == 0 {
		hz = 1
	}
	return &Tracer{log: log, hz: hz, ranTotals: make(map[TaskID]uint64)}
}

// EnableCSVLogging opens the given file path for CSV logging of events.
// Must be called before Consume.
func (tr *Tracer) EnableCSVLogging(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	tr.EnableCSV(f)
	tr.csvCloser = f
	return nil
}

// EnableCSV writes rows to w.
func (tr *Tracer) EnableCSV(w io.Writer) {
	tr.csvWriter = csv.NewWriter(w)
	// write header
	tr.csvWriter.Write([]string{"tick", "ms", "event", "task_id", "task", "runs", "deadline", "error"})
	tr.csvWriter.Flush()
}

// Consume handles events until ch is closed.
func (tr *Tracer) Consume(ch <-chan StatusEvent) error {
	for ev := range ch {
		tr.Handle(ev)
	}
	if tr.csvWriter != nil {
		tr.csvWriter.Flush()
		if err := tr.csvWriter.Error(); err != nil {
			return err
		}
	}
	if tr.csvCloser != nil {
		return tr.csvCloser.Close()
	}
	return nil
}

// Handle logs one event.
func (tr *Tracer) Handle(ev StatusEvent) {
	// idle events happen before every low-power wait; skip them unless asked
	// for the brevity of output.
	if ev.Kind == StatusIdle && !tr.ShowIdle {
		return
	}
	if ev.Kind == StatusDispatch {
		tr.ranTotals[ev.TaskID]++
	}

	ms := uint64(ev.Tick) * 1000 / uint64(tr.hz)
	var e *zerolog.Event
	switch ev.Kind {
	case StatusFault:
		e = tr.log.Error().Err(ev.Err)
	case StatusDispatch, StatusWait, StatusIdle:
		e = tr.log.Debug()
	default:
		e = tr.log.Info()
	}
	e = e.Uint32("tick", uint32(ev.Tick)).Uint64("ms", ms)
	if ev.Task != "" {
		e = e.Str("task", ev.Task).Uint64("dispatched", tr.ranTotals[ev.TaskID])
	}
	if ev.Kind == StatusWait || ev.Kind == StatusIdle {
		e = e.Uint32("deadline", uint32(ev.Deadline))
	}
	e.Msg(ev.Kind.String())

	// CSV output
	if tr.csvWriter != nil {
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		rec := []string{
			strconv.FormatUint(uint64(ev.Tick), 10),
			strconv.FormatUint(ms, 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			ev.Task,
			strconv.FormatUint(ev.Runs, 10),
			strconv.FormatUint(uint64(ev.Deadline), 10),
			errText,
		}
		tr.csvWriter.Write(rec)
		tr.csvWriter.Flush()
	}
}

// Dispatched returns how many Dispatch events the tracer saw for id.
func (tr *Tracer) Dispatched(id TaskID) uint64 { return tr.ranTotals[id] }
