// internal/sched/event.go

package sched

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"edfsched/internal/logx"
)

// EventKind represents the type of scheduler event
type EventKind int

const (
	EventArrival EventKind = iota
	EventAdmit
	EventReject
	EventGrant
	EventRelease
	EventLost
	EventIntercepted
	EventImpacted
	EventTrackingError
	EventCancelled
	EventShutdown
)

// Event is emitted on every significant task or scheduler transition.
type Event struct {
	Time     time.Time
	Kind     EventKind
	TaskID   TaskID
	Target   string
	Deadline time.Time
	Phase    Phase
	Err      error
}

func (k EventKind) String() string {
	switch k {
	case EventArrival:
		return "Arrival"
	case EventAdmit:
		return "Admit"
	case EventReject:
		return "Reject"
	case EventGrant:
		return "Grant"
	case EventRelease:
		return "Release"
	case EventLost:
		return "Lost"
	case EventIntercepted:
		return "Intercepted"
	case EventImpacted:
		return "Impacted"
	case EventTrackingError:
		return "TrackingError"
	case EventCancelled:
		return "Cancelled"
	case EventShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// terminalEvent maps a terminal phase to the event reporting it.
func terminalEvent(p Phase) EventKind {
	switch p {
	case PhaseIntercepted:
		return EventIntercepted
	case PhaseImpacted:
		return EventImpacted
	case PhaseLost:
		return EventLost
	case PhaseInvalid:
		return EventReject
	case PhaseTrackingError:
		return EventTrackingError
	default:
		return EventCancelled
	}
}

// eventSink turns events into log lines, CSV rows and observer calls.
type eventSink struct {
	log      logx.Logger
	observer func(Event)
	start    time.Time

	csvFile   *os.File
	csvWriter *csv.Writer
}

// enableCSV opens path for the CSV trace and writes the header.
func (s *eventSink) enableCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open event trace: %w", err)
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"timestamp", "elapsed_ms", "event", "task_id", "target", "deadline_ms", "phase", "error"})
	w.Flush()
	s.csvFile = f
	s.csvWriter = w
	return nil
}

func (s *eventSink) handle(ev Event) {
	if s.observer != nil {
		s.observer(ev)
	}

	fields := []logx.Field{
		logx.String("event", ev.Kind.String()),
		logx.Uint64("task", uint64(ev.TaskID)),
		logx.Int64("elapsed_ms", ev.Time.Sub(s.start).Milliseconds()),
	}
	if ev.Target != "" {
		fields = append(fields, logx.String("target", ev.Target))
	}
	if !ev.Deadline.IsZero() {
		fields = append(fields,
			logx.Time("deadline", ev.Deadline),
			logx.Duration("deadline_in", ev.Deadline.Sub(ev.Time)))
	}
	switch ev.Kind {
	case EventLost, EventTrackingError:
		s.log.Warn("target "+ev.Kind.String(), append(fields, logx.Err(ev.Err))...)
	case EventReject:
		s.log.Info("admission rejected", append(fields, logx.Err(ev.Err))...)
	case EventShutdown:
		s.log.Info("scheduler shut down", logx.Err(ev.Err))
	default:
		s.log.Debug(ev.Kind.String(), fields...)
	}

	if s.csvWriter != nil {
		deadline := ""
		if !ev.Deadline.IsZero() {
			deadline = strconv.FormatInt(ev.Deadline.Sub(s.start).Milliseconds(), 10)
		}
		errText := ""
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		rec := []string{
			ev.Time.Format(time.RFC3339Nano),
			strconv.FormatInt(ev.Time.Sub(s.start).Milliseconds(), 10),
			ev.Kind.String(),
			strconv.FormatUint(uint64(ev.TaskID), 10),
			ev.Target,
			deadline,
			ev.Phase.String(),
			errText,
		}
		_ = s.csvWriter.Write(rec)
		s.csvWriter.Flush()
	}
}

func (s *eventSink) close() error {
	if s.csvFile == nil {
		return nil
	}
	s.csvWriter.Flush()
	err := s.csvWriter.Error()
	if cerr := s.csvFile.Close(); err == nil {
		err = cerr
	}
	s.csvFile = nil
	s.csvWriter = nil
	return err
}
