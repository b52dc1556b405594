package sched

import (
	"fmt"
	"sync"

	"edfsched/internal/world"
)

// Resource guards the single shared actuator. It has at most one holder;
// only the dispatcher grants it.
type Resource struct {
	mu     sync.Mutex
	act    world.Actuator
	holder TaskID
	held   bool
	grants uint64
}

// NewResource wraps act.
func NewResource(act world.Actuator) *Resource {
	return &Resource{act: act}
}

func (r *Resource) grant(id TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held {
		return fmt.Errorf("%w by task %d, refusing task %d", ErrResourceHeld, r.holder, id)
	}
	r.holder = id
	r.held = true
	r.grants++
	return nil
}

// Release frees the resource if id holds it and reports whether it did.
func (r *Resource) Release(id TaskID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.held || r.holder != id {
		return false
	}
	r.held = false
	r.holder = 0
	return true
}

// ForceRelease frees the resource regardless of holder and returns who
// held it.
func (r *Resource) ForceRelease() (TaskID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, held := r.holder, r.held
	r.held = false
	r.holder = 0
	return id, held
}

// Holder returns the current holder, if any.
func (r *Resource) Holder() (TaskID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.holder, r.held
}

// Available reports whether nobody holds the resource.
func (r *Resource) Available() bool {
	_, held := r.Holder()
	return !held
}

// Grants returns how many grants have been made.
func (r *Resource) Grants() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants
}

// Move points the actuator at x on behalf of id.
func (r *Resource) Move(id TaskID, x int) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.act.Move(x)
	return nil
}

// Fire triggers the actuator on behalf of id.
func (r *Resource) Fire(id TaskID) error {
	if err := r.check(id); err != nil {
		return err
	}
	r.act.Fire()
	return nil
}

func (r *Resource) check(id TaskID) error {
	holder, held := r.Holder()
	if !held || holder != id {
		return fmt.Errorf("task %d: %w", id, ErrNotHolder)
	}
	return nil
}
