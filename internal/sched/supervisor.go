// internal/sched/supervisor.go

package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"edfsched/internal/clock"
	"edfsched/internal/logx"
	"edfsched/internal/world"
)

// Supervisor owns the wait queue, the shared resource, the dispatcher and
// the registry of live interception tasks for one run. It spawns a task
// per target arrival and performs an orderly teardown on shutdown.
type Supervisor struct {
	world world.World
	cfg   Config
	log   logx.Logger
	clk   clock.Clock
	runID string

	queue *WaitQueue
	res   *Resource
	disp  *Dispatcher
	est   Estimator

	events chan Event
	sink   eventSink

	nextID atomic.Uint64

	mu             sync.Mutex
	live           map[TaskID]*handle
	started        bool
	accepting      bool
	stopped        bool // arrivals stopped
	runCtx         context.Context
	cancelArrivals context.CancelFunc

	tasks        sync.WaitGroup
	stopOnce     sync.Once
	shutdownOnce sync.Once
	shutdown     chan struct{}
	done         chan struct{}
	err          error
}

type handle struct {
	task   *Task
	cancel context.CancelFunc
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithObserver registers fn to receive every event, in emission order.
// fn runs on the event goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(s *Supervisor) { s.sink.observer = fn }
}

func WithClock(c clock.Clock) Option {
	return func(s *Supervisor) { s.clk = c }
}

// New builds a supervisor over w. Nothing runs until Start.
func New(w world.World, cfg Config, opts ...Option) *Supervisor {
	s := &Supervisor{
		world:    w,
		cfg:      cfg,
		log:      logx.Nop(),
		clk:      clock.System{},
		runID:    uuid.NewString(),
		queue:    NewWaitQueue(),
		res:      NewResource(w),
		est:      Estimator{MinSpeed: cfg.MinSpeed},
		live:     make(map[TaskID]*handle),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("run_id", s.runID))
	s.sink.log = s.log
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = DefaultConfig().EventBuffer
	}
	s.events = make(chan Event, buf)
	s.disp = NewDispatcher(s.queue, s.res, s.emit, s.log.With(logx.String("component", "dispatcher")))
	return s
}

// RunID identifies this run in logs.
func (s *Supervisor) RunID() string { return s.runID }

// Start begins dispatching and accepting arrivals. Teardown happens on
// RequestShutdown, on cancellation of ctx, or if a core loop fails.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	s.sink.start = s.clk.Now()
	if s.cfg.CSVPath != "" {
		if err := s.sink.enableCSV(s.cfg.CSVPath); err != nil {
			return err
		}
	}
	s.started = true
	s.accepting = !s.stopped

	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		for ev := range s.events {
			s.sink.handle(ev)
		}
	}()

	runCtx, cancelRun := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	arrivalsCtx, cancelArrivals := context.WithCancel(gctx)
	s.runCtx = gctx
	s.cancelArrivals = cancelArrivals

	g.Go(func() error { return ignoreCanceled(s.disp.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(s.accept(arrivalsCtx)) })
	if s.stopped {
		cancelArrivals()
	} else if a, ok := s.world.(world.Arrivals); ok {
		a.StartArrivals()
	}

	go func() {
		select {
		case <-s.shutdown:
		case <-gctx.Done():
		}
		s.teardown(cancelRun, g, sinkDone)
	}()

	s.log.Info("scheduler started",
		logx.Duration("probe", s.cfg.ProbeInterval()),
		logx.Duration("relax", s.cfg.RelaxInterval()),
		logx.Float64("min_speed", s.cfg.MinSpeed),
		logx.Bool("csv_trace", s.cfg.CSVPath != ""))
	return nil
}

// StopArrivals stops accepting new targets. Live tasks keep running.
func (s *Supervisor) StopArrivals() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.accepting = false
		s.stopped = true
		cancel := s.cancelArrivals
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		if a, ok := s.world.(world.Arrivals); ok {
			a.StopArrivals()
		}
		s.log.Info("arrivals stopped")
	})
}

// RequestShutdown triggers teardown and returns at once. It is safe to
// call any number of times from any goroutine, including a signal handler.
func (s *Supervisor) RequestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Wait blocks until teardown has finished and returns its error.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return nil
	}
	<-s.done
	return s.err
}

// Done is closed once teardown has finished.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Live returns the number of registered tasks.
func (s *Supervisor) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Queued returns the number of tasks waiting for a grant.
func (s *Supervisor) Queued() int { return s.queue.Len() }

// Holder returns the task holding the resource, if any.
func (s *Supervisor) Holder() (TaskID, bool) { return s.res.Holder() }

func (s *Supervisor) accept(ctx context.Context) error {
	for {
		target, err := s.world.WaitTarget(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for target: %w", err)
		}
		s.spawn(target)
	}
}

func (s *Supervisor) spawn(target world.Target) {
	t := NewTask(TaskID(s.nextID.Add(1)), target)

	s.mu.Lock()
	if !s.accepting {
		s.mu.Unlock()
		s.log.Debug("arrival ignored, not accepting", logx.String("target", targetName(t)))
		return
	}
	ctx, cancel := context.WithCancel(s.runCtx)
	s.live[t.ID] = &handle{task: t, cancel: cancel}
	s.tasks.Add(1)
	s.mu.Unlock()

	s.emit(Event{Kind: EventArrival, TaskID: t.ID, Target: targetName(t), Phase: PhaseSampling})

	it := &interception{
		task:   t,
		radar:  s.world,
		queue:  s.queue,
		res:    s.res,
		disp:   s.disp,
		est:    s.est,
		clk:    s.clk,
		probe:  s.cfg.ProbeInterval(),
		settle: s.cfg.SettleDelay(),
		relax:  s.cfg.RelaxInterval(),
		emit:   s.emit,
		log:    s.log,
	}
	go func() {
		defer s.tasks.Done()
		defer s.deregister(t.ID)
		defer cancel()

		phase, err := it.run(ctx)
		s.log.Debug("task finished",
			logx.Uint64("task", uint64(t.ID)),
			logx.String("phase", phase.String()),
			logx.Err(err))
	}()
}

func (s *Supervisor) deregister(id TaskID) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

func (s *Supervisor) teardown(cancelRun context.CancelFunc, g *errgroup.Group, sinkDone <-chan struct{}) {
	s.StopArrivals()

	// 1) cancel every live task through the registry, then the loops
	s.mu.Lock()
	s.accepting = false
	n := len(s.live)
	for id, h := range s.live {
		s.log.Debug("cancelling task", logx.Uint64("task", uint64(id)), logx.String("phase", h.task.Phase().String()))
		h.cancel()
	}
	s.mu.Unlock()
	cancelRun()
	s.log.Info("shutting down", logx.Int("live_tasks", n))

	// 2) wait for everything that can still emit
	loopErr := g.Wait()
	s.tasks.Wait()

	// 3) nothing may stay queued or hold the actuator
	if left := s.queue.Drain(); len(left) > 0 {
		s.log.Warn("drained queue", logx.Int("tasks", len(left)))
	}
	if id, held := s.res.ForceRelease(); held {
		s.log.Warn("force-released resource", logx.Uint64("task", uint64(id)))
	}

	closeErr := s.world.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("close world: %w", closeErr)
	}

	err := errors.Join(loopErr, closeErr)
	s.emit(Event{Kind: EventShutdown, Err: err})
	close(s.events)
	<-sinkDone
	if serr := s.sink.close(); serr != nil {
		err = errors.Join(err, fmt.Errorf("close event trace: %w", serr))
	}

	s.err = err
	close(s.done)
}

func (s *Supervisor) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = s.clk.Now()
	}
	s.events <- ev
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
