// internal/sched/dispatcher.go

package sched

import (
	"context"
	"fmt"

	"edfsched/internal/logx"
)

// Dispatcher owns the availability of the shared resource. It repeatedly
// grants it to the earliest-deadline waiter and waits for that task to
// release it before granting again. A holder is never preempted; a
// newly arrived earlier deadline only wins at the next grant.
type Dispatcher struct {
	queue    *WaitQueue
	res      *Resource
	released chan TaskID // task -> dispatcher
	emit     func(Event)
	log      logx.Logger
}

// NewDispatcher wires a dispatcher over q and res. emit may be nil.
func NewDispatcher(q *WaitQueue, res *Resource, emit func(Event), log logx.Logger) *Dispatcher {
	if emit == nil {
		emit = func(Event) {}
	}
	return &Dispatcher{
		queue:    q,
		res:      res,
		released: make(chan TaskID, 1),
		emit:     emit,
		log:      log,
	}
}

// Run loops until ctx is done. It returns ctx.Err() on cancellation, or an
// error if the single-holder invariant is ever found broken.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		// 1) wait for the earliest waiter
		t, err := d.queue.Take(ctx)
		if err != nil {
			return err
		}

		// 2) grant, unless the task gave up in the meantime
		ok, err := t.offerGrant(func() error { return d.grant(t) })
		if err != nil {
			return fmt.Errorf("dispatch task %d: %w", t.ID, err)
		}
		if !ok {
			d.log.Debug("skipping abandoned task", logx.Uint64("task", uint64(t.ID)))
			continue
		}
		d.log.Debug("granted", logx.Uint64("task", uint64(t.ID)), logx.Int("waiting", d.queue.Len()))

		// 3) hold off until the holder lets go
		if err := d.awaitRelease(ctx, t.ID); err != nil {
			return err
		}
	}
}

// grant runs under the task lock, before the task is woken, so the Grant
// event always precedes the holder's Release.
func (d *Dispatcher) grant(t *Task) error {
	if err := d.res.grant(t.ID); err != nil {
		return err
	}
	d.emit(Event{Kind: EventGrant, TaskID: t.ID, Target: targetName(t), Deadline: t.deadline, Phase: PhaseArmed})
	return nil
}

func (d *Dispatcher) awaitRelease(ctx context.Context, id TaskID) error {
	for {
		select {
		case got := <-d.released:
			if got == id {
				return nil
			}
			d.log.Warn("release from non-holder ignored", logx.Uint64("task", uint64(got)), logx.Uint64("holder", uint64(id)))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release hands the resource back on behalf of t. It reports false when t
// was not the holder, which makes repeated calls harmless.
func (d *Dispatcher) Release(t *Task) bool {
	if id, held := d.res.Holder(); !held || id != t.ID {
		return false
	}
	// Emitted while still holding so the event stream alternates strictly
	// between grants and releases.
	d.emit(Event{Kind: EventRelease, TaskID: t.ID, Target: targetName(t), Phase: t.Phase()})
	if !d.res.Release(t.ID) {
		return false
	}
	d.released <- t.ID
	return true
}
