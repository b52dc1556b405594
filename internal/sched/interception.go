package sched

import (
	"context"
	"fmt"
	"time"

	"edfsched/internal/clock"
	"edfsched/internal/logx"
	"edfsched/internal/world"
)

// interception drives one task from first sighting to a terminal phase:
// Sampling -> Estimating -> Queued -> Armed -> Fired -> Tracking -> terminal.
type interception struct {
	task  *Task
	radar world.Radar
	queue *WaitQueue
	res   *Resource
	disp  *Dispatcher
	est   Estimator
	clk   clock.Clock

	probe  time.Duration
	settle time.Duration
	relax  time.Duration

	emit func(Event)
	log  logx.Logger
}

// run returns the terminal phase reached. Whatever the exit path, the
// task is out of the queue and no longer holds the resource on return.
func (it *interception) run(ctx context.Context) (final Phase, err error) {
	t := it.task

	defer func() {
		it.queue.Remove(t)
		if t.abandon() {
			it.disp.Release(t)
		}
		t.setPhase(final)
		it.emitFor(terminalEvent(final), err)
	}()

	// SAMPLING
	s0, err := it.sample()
	if err != nil {
		return PhaseLost, err
	}
	if err := clock.SleepUntil(ctx, it.clk, s0.At.Add(it.probe)); err != nil {
		return PhaseCancelled, err
	}
	s1, err := it.sample()
	if err != nil {
		return PhaseLost, err
	}

	// ESTIMATING
	t.setPhase(PhaseEstimating)
	deadline, err := it.est.Estimate(s0, s1)
	if err != nil {
		return PhaseInvalid, err
	}
	t.SetDeadline(deadline)

	// QUEUED. Admit goes out first; the dispatcher may grant as soon as
	// the task is in the queue.
	it.emit(Event{Kind: EventAdmit, TaskID: t.ID, Target: targetName(t), Deadline: deadline, Phase: PhaseQueued})
	if err := it.queue.Insert(t); err != nil {
		return PhaseInvalid, fmt.Errorf("admit task %d: %w", t.ID, err)
	}

	select {
	case <-t.Wake():
	case <-ctx.Done():
		return PhaseCancelled, ctx.Err()
	}

	// ARMED
	status, pos := it.radar.Sample(t.Target)
	if status != world.StatusActive {
		it.disp.Release(t)
		return PhaseLost, fmt.Errorf("%w: %s before firing", ErrTargetLost, status)
	}

	// FIRED
	t.setPhase(PhaseFired)
	if err := it.res.Move(t.ID, pos.X); err != nil {
		return PhaseCancelled, err
	}
	if err := clock.Sleep(ctx, it.settle); err != nil {
		return PhaseCancelled, err
	}
	if err := it.res.Fire(t.ID); err != nil {
		return PhaseCancelled, err
	}
	it.disp.Release(t)
	it.log.Debug("fired", logx.Uint64("task", uint64(t.ID)), logx.Int("x", pos.X), logx.Int("y", pos.Y))

	// TRACKING
	t.setPhase(PhaseTracking)
	return it.track(ctx)
}

func (it *interception) track(ctx context.Context) (Phase, error) {
	poll := clock.NewPoller(it.relax)
	defer poll.Stop()

	for {
		status, _ := it.radar.Sample(it.task.Target)
		switch status {
		case world.StatusIntercepted:
			return PhaseIntercepted, nil
		case world.StatusImpacted:
			return PhaseImpacted, nil
		case world.StatusError:
			return PhaseTrackingError, fmt.Errorf("radar lost track after %d polls", poll.Polls())
		}

		select {
		case <-poll.C():
		case <-ctx.Done():
			return PhaseCancelled, ctx.Err()
		}
	}
}

func (it *interception) sample() (Sample, error) {
	status, pos := it.radar.Sample(it.task.Target)
	at := it.clk.Now()
	if status != world.StatusActive {
		return Sample{}, fmt.Errorf("%w: %s while sampling", ErrTargetLost, status)
	}
	return Sample{At: at, Pos: pos}, nil
}

func (it *interception) emitFor(kind EventKind, err error) {
	t := it.task
	it.emit(Event{
		Kind:     kind,
		TaskID:   t.ID,
		Target:   targetName(t),
		Deadline: t.Deadline(),
		Phase:    t.Phase(),
		Err:      err,
	})
}

func targetName(t *Task) string {
	if t.Target == nil {
		return ""
	}
	return t.Target.Name()
}
