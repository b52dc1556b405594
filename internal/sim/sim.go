// Package sim is a small simulated battlefield: a bomber drops targets that
// fall straight down, a radar reports them and a single cannon shoots
// along a column.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"edfsched/internal/clock"
	"edfsched/internal/world"
)

var ErrClosed = errors.New("world closed")

// Config shapes the simulation.
type Config struct {
	Width      int     // columns 0..Width-1
	Height     int     // spawn height
	MinSpeed   float64 // units per second
	MaxSpeed   float64 // units per second
	Rate       float64 // arrivals per second, <= 0 is unlimited
	Burst      int     // arrivals allowed back to back
	Tolerance  int     // columns either side a shot still hits
	Seed       uint64  // 0 picks a random seed
	MaxTargets int     // 0 is unbounded
}

type target struct {
	owner  *World
	id     uint64
	x      int
	height int
	speed  float64
	born   time.Time

	status world.Status
	endY   int
}

func (t *target) Name() string { return fmt.Sprintf("missile-%03d", t.id) }

// World implements world.World and world.Arrivals.
type World struct {
	cfg     Config
	clk     clock.Clock
	limiter *rate.Limiter

	mu      sync.Mutex
	rng     *rand.Rand
	flying  map[*target]struct{} // active targets only
	spawned int
	bombing bool
	changed chan struct{} // closed on bombing or closed transitions
	closed  bool
	cannonX int
	shots   int
	hits    int
	impacts int
}

// New builds a world. Arrivals start switched off.
func New(cfg Config, clk clock.Clock) *World {
	if clk == nil {
		clk = clock.System{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(cfg.Rate)
	if cfg.Rate <= 0 {
		limit = rate.Inf
	}
	return &World{
		cfg:     cfg,
		clk:     clk,
		limiter: rate.NewLimiter(limit, burst),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		flying:  make(map[*target]struct{}),
		changed: make(chan struct{}),
	}
}

// StartArrivals begins the bombing run.
func (w *World) StartArrivals() { w.setBombing(true) }

// StopArrivals ends the bombing run; targets already in flight keep falling.
func (w *World) StopArrivals() { w.setBombing(false) }

func (w *World) setBombing(on bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bombing == on || w.closed {
		return
	}
	w.bombing = on
	w.notifyLocked()
}

func (w *World) notifyLocked() {
	close(w.changed)
	w.changed = make(chan struct{})
}

// WaitTarget blocks until the bomber releases the next target.
func (w *World) WaitTarget(ctx context.Context) (world.Target, error) {
	for {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return nil, ErrClosed
		}
		active := w.bombing && (w.cfg.MaxTargets == 0 || w.spawned < w.cfg.MaxTargets)
		changed := w.changed
		w.mu.Unlock()

		if !active {
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if t := w.spawn(); t != nil {
			return t, nil
		}
	}
}

func (w *World) spawn() *target {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.bombing || (w.cfg.MaxTargets > 0 && w.spawned >= w.cfg.MaxTargets) {
		return nil
	}
	w.spawned++
	speed := w.cfg.MinSpeed
	if span := w.cfg.MaxSpeed - w.cfg.MinSpeed; span > 0 {
		speed += w.rng.Float64() * span
	}
	t := &target{
		owner:  w,
		id:     uint64(w.spawned),
		x:      w.rng.IntN(max(w.cfg.Width, 1)),
		height: w.cfg.Height,
		speed:  speed,
		born:   w.clk.Now(),
	}
	w.flying[t] = struct{}{}
	return t
}

// Sample reports status and position, bringing the target's state up to
// date first.
func (w *World) Sample(h world.Target) (world.Status, world.Position) {
	t, ok := h.(*target)
	if !ok || t.owner != w {
		return world.StatusError, world.Position{}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	y := w.updateLocked(t, w.clk.Now())
	return t.status, world.Position{X: t.x, Y: y}
}

// updateLocked advances t to now and returns its height. A target that
// lands leaves the flying set; its handle keeps reporting Impacted.
func (w *World) updateLocked(t *target, now time.Time) int {
	if t.status != world.StatusActive {
		return t.endY
	}
	y := t.height - int(t.speed*now.Sub(t.born).Seconds())
	if y <= 0 {
		t.status = world.StatusImpacted
		t.endY = 0
		w.impacts++
		delete(w.flying, t)
		return 0
	}
	return y
}

// Move points the cannon at column x.
func (w *World) Move(x int) {
	w.mu.Lock()
	w.cannonX = x
	w.mu.Unlock()
}

// Fire shoots along the cannon's column, intercepting every active target
// within tolerance.
func (w *World) Fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shots++
	now := w.clk.Now()
	for t := range w.flying {
		y := w.updateLocked(t, now)
		if t.status != world.StatusActive {
			continue
		}
		if d := t.x - w.cannonX; d >= -w.cfg.Tolerance && d <= w.cfg.Tolerance {
			t.status = world.StatusIntercepted
			t.endY = y
			w.hits++
			delete(w.flying, t)
		}
	}
}

// Stats is a snapshot of the simulation counters.
type Stats struct {
	Spawned  int
	Shots    int
	Hits     int
	Impacts  int
	InFlight int
}

func (w *World) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clk.Now()
	for t := range w.flying {
		w.updateLocked(t, now)
	}
	return Stats{Spawned: w.spawned, Shots: w.shots, Hits: w.hits, Impacts: w.impacts, InFlight: len(w.flying)}
}

// Close stops the bomber and wakes any WaitTarget caller.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true
	w.bombing = false
	w.notifyLocked()
	return nil
}
