// internal/sched/queue.go

package sched

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// WaitQueue holds tasks waiting for the shared resource, ordered by
// deadline and then by insertion order. Every mutation happens under mu,
// so observers never see a partially ordered state.
type WaitQueue struct {
	mu    sync.Mutex
	rbt   *redblacktree.Tree // nodeKey -> *Task
	index map[TaskID]nodeKey // for Remove
	seq   uint64

	// ready is closed and replaced whenever an element is inserted,
	// waking every blocked Take.
	ready chan struct{}
}

// NewWaitQueue returns an empty queue.
func NewWaitQueue() *WaitQueue {
	return &WaitQueue{
		rbt:   redblacktree.NewWith(cmp),
		index: make(map[TaskID]nodeKey),
		ready: make(chan struct{}),
	}
}

// Insert places t by deadline. The task must have a deadline and must not
// already be queued.
func (q *WaitQueue) Insert(t *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.index[t.ID]; dup {
		return ErrAlreadyQueued
	}
	if !t.HasDeadline() {
		return ErrNoDeadline
	}

	t.mu.Lock()
	deadline := t.deadline
	q.seq++
	if !t.phase.Terminal() {
		t.phase = PhaseQueued
	}
	t.mu.Unlock()

	key := nodeKey{deadline: deadline, seq: q.seq}
	q.rbt.Put(key, t)
	q.index[t.ID] = key

	close(q.ready)
	q.ready = make(chan struct{})
	return nil
}

// Take removes and returns the earliest-deadline task, suspending until
// one is available or ctx is done.
func (q *WaitQueue) Take(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if t, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return t, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryTake is the non-blocking form of Take. ok is false when the queue
// is empty.
func (q *WaitQueue) TryTake() (t *Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Peek returns the earliest task without removing it.
func (q *WaitQueue) Peek() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	node := q.rbt.Left()
	if node == nil {
		return nil, false
	}
	return node.Value.(*Task), true
}

// Remove takes t out of the queue wherever it is. It reports whether t was
// present.
func (q *WaitQueue) Remove(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key, ok := q.index[t.ID]
	if !ok {
		return false
	}
	q.rbt.Remove(key)
	delete(q.index, t.ID)
	return true
}

// Len returns the number of waiting tasks.
func (q *WaitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rbt.Size()
}

// Drain empties the queue and returns its contents in deadline order.
func (q *WaitQueue) Drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*Task, 0, q.rbt.Size())
	for {
		t, ok := q.popLocked()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

func (q *WaitQueue) popLocked() (*Task, bool) {
	node := q.rbt.Left()
	if node == nil {
		return nil, false
	}
	key := node.Key.(nodeKey)
	t := node.Value.(*Task)
	q.rbt.Remove(key)
	delete(q.index, t.ID)
	return t, true
}

// nodeKey is used as a key in the red-black tree.
type nodeKey struct {
	deadline time.Time
	seq      uint64
}

// cmp orders keys by deadline, then by insertion sequence.
func cmp(a, b any) int {
	ka, kb := a.(nodeKey), b.(nodeKey)
	switch {
	case ka.deadline.Before(kb.deadline):
		return -1
	case ka.deadline.After(kb.deadline):
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}
