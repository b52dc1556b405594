package sched

import (
	"sync"
	"time"

	"edfsched/internal/world"
)

// TaskID uniquely identifies an interception task. IDs grow monotonically
// in arrival order.
type TaskID uint64

// Phase is the lifecycle state of an interception task.
type Phase int

const (
	PhaseSampling Phase = iota
	PhaseEstimating
	PhaseQueued
	PhaseArmed
	PhaseFired
	PhaseTracking

	// terminal phases
	PhaseIntercepted
	PhaseImpacted
	PhaseLost
	PhaseInvalid
	PhaseTrackingError
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseSampling:
		return "Sampling"
	case PhaseEstimating:
		return "Estimating"
	case PhaseQueued:
		return "Queued"
	case PhaseArmed:
		return "Armed"
	case PhaseFired:
		return "Fired"
	case PhaseTracking:
		return "Tracking"
	case PhaseIntercepted:
		return "Intercepted"
	case PhaseImpacted:
		return "Impacted"
	case PhaseLost:
		return "Lost"
	case PhaseInvalid:
		return "Invalid"
	case PhaseTrackingError:
		return "TrackingError"
	case PhaseCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether p ends the task.
func (p Phase) Terminal() bool { return p >= PhaseIntercepted }

// Task is one interception attempt against one target.
type Task struct {
	ID     TaskID
	Target world.Target

	mu        sync.Mutex
	deadline  time.Time
	phase     Phase
	granted   bool // set by the dispatcher
	abandoned bool // set by a cancelled task

	wake chan struct{} // dispatcher -> task, single slot
}

// NewTask creates a task in the Sampling phase with no deadline yet.
func NewTask(id TaskID, target world.Target) *Task {
	return &Task{
		ID:     id,
		Target: target,
		phase:  PhaseSampling,
		wake:   make(chan struct{}, 1),
	}
}

// Deadline returns the estimated deadline, zero until computed.
func (t *Task) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// HasDeadline reports whether a deadline has been assigned.
func (t *Task) HasDeadline() bool { return !t.Deadline().IsZero() }

// SetDeadline fixes the deadline. It is immutable afterwards.
func (t *Task) SetDeadline(d time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.deadline.IsZero() {
		return false
	}
	t.deadline = d
	return true
}

// Phase returns the current lifecycle phase.
func (t *Task) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *Task) setPhase(p Phase) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
}

// Wake is the private grant slot; it receives once the dispatcher has
// handed the resource to this task.
func (t *Task) Wake() <-chan struct{} { return t.wake }

// offerGrant runs the dispatcher side of the grant handshake. grant is
// invoked with the task lock held so that a concurrent abandon either
// happens before it (and the offer is refused) or observes granted=true.
func (t *Task) offerGrant(grant func() error) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.abandoned {
		return false, nil
	}
	if err := grant(); err != nil {
		return false, err
	}
	t.granted = true
	t.phase = PhaseArmed
	t.wake <- struct{}{}
	return true, nil
}

// abandon marks the task as no longer interested in a grant and reports
// whether one had already been made.
func (t *Task) abandon() (granted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.abandoned = true
	return t.granted
}
