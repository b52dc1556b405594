package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"edfsched/internal/world"
)

type fakeTarget struct {
	name string
	x    int
	y0   int
	v    float64 // units per second, positive falls
	born time.Time
	miss bool // a shot at its column does nothing
	dud  bool // a shot at its column leaves the radar confused
}

func (f *fakeTarget) Name() string { return f.name }

// fakeWorld is a scripted world: targets fall linearly and a shot at a
// column intercepts the target standing in it.
type fakeWorld struct {
	arrivals chan world.Target

	mu      sync.Mutex
	status  map[*fakeTarget]world.Status
	cannonX int
	moves   []int
	closed  bool

	busy    atomic.Int32 // between Move and Fire
	maxBusy atomic.Int32
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		arrivals: make(chan world.Target, 128),
		status:   make(map[*fakeTarget]world.Status),
	}
}

func (w *fakeWorld) add(name string, x, y0 int, v float64) *fakeTarget {
	t := &fakeTarget{name: name, x: x, y0: y0, v: v, born: time.Now()}
	w.mu.Lock()
	w.status[t] = world.StatusActive
	w.mu.Unlock()
	return t
}

func (w *fakeWorld) push(targets ...*fakeTarget) {
	for _, t := range targets {
		w.arrivals <- t
	}
}

func (w *fakeWorld) set(t *fakeTarget, st world.Status) {
	w.mu.Lock()
	w.status[t] = st
	w.mu.Unlock()
}

func (w *fakeWorld) WaitTarget(ctx context.Context) (world.Target, error) {
	select {
	case t := <-w.arrivals:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *fakeWorld) Sample(target world.Target) (world.Status, world.Position) {
	ft, ok := target.(*fakeTarget)
	if !ok {
		return world.StatusError, world.Position{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.status[ft]
	if !ok {
		return world.StatusError, world.Position{}
	}
	y := ft.y0 - int(ft.v*time.Since(ft.born).Seconds())
	if st == world.StatusActive && y <= 0 {
		st = world.StatusImpacted
		w.status[ft] = st
	}
	return st, world.Position{X: ft.x, Y: y}
}

func (w *fakeWorld) Move(x int) {
	n := w.busy.Add(1)
	for {
		m := w.maxBusy.Load()
		if n <= m || w.maxBusy.CompareAndSwap(m, n) {
			break
		}
	}
	w.mu.Lock()
	w.cannonX = x
	w.moves = append(w.moves, x)
	w.mu.Unlock()
}

func (w *fakeWorld) Fire() {
	w.mu.Lock()
	for t, st := range w.status {
		if st != world.StatusActive || t.x != w.cannonX || t.miss {
			continue
		}
		if t.dud {
			w.status[t] = world.StatusError
		} else {
			w.status[t] = world.StatusIntercepted
		}
	}
	w.mu.Unlock()
	w.busy.Add(-1)
}

func (w *fakeWorld) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("closed twice")
	}
	w.closed = true
	return nil
}

func (w *fakeWorld) movesSnapshot() []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.moves...)
}

// recorder collects events from a supervisor observer.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) kinds(kind EventKind) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) targetsOf(kind EventKind) []string {
	var out []string
	for _, ev := range r.kinds(kind) {
		out = append(out, ev.Target)
	}
	return out
}

func (r *recorder) has(kind EventKind, target string) bool {
	for _, ev := range r.kinds(kind) {
		if ev.Target == target {
			return true
		}
	}
	return false
}

// testConfig keeps timings short; Settle is the knob that makes a
// holder keep the resource long enough for others to queue up.
func testConfig(settle time.Duration) Config {
	cfg := DefaultConfig()
	cfg.ProbeMS = 2
	cfg.RelaxMS = 2
	cfg.SettleMS = int(settle / time.Millisecond)
	cfg.MinSpeed = 1
	return cfg
}
