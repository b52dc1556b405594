package sched

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskWithDeadline(id TaskID, base time.Time, offset time.Duration) *Task {
	t := NewTask(id, nil)
	t.SetDeadline(base.Add(offset))
	return t
}

func TestWaitQueue_OrdersByDeadline(t *testing.T) {
	q := NewWaitQueue()
	base := time.Now()

	offsets := rand.Perm(40)
	for i, off := range offsets {
		require.NoError(t, q.Insert(taskWithDeadline(TaskID(i+1), base, time.Duration(off)*time.Millisecond)))
	}
	require.Equal(t, len(offsets), q.Len())

	prev := time.Time{}
	for range offsets {
		task, ok := q.TryTake()
		require.True(t, ok)
		assert.True(t, task.Deadline().After(prev), "deadlines must strictly increase")
		prev = task.Deadline()
	}
	_, ok := q.TryTake()
	assert.False(t, ok)
}

func TestWaitQueue_TieBreakByInsertion(t *testing.T) {
	q := NewWaitQueue()
	base := time.Now()

	// IDs deliberately out of order: ties follow insertion, not ID.
	ids := []TaskID{5, 2, 9, 1}
	for _, id := range ids {
		require.NoError(t, q.Insert(taskWithDeadline(id, base, time.Second)))
	}
	require.NoError(t, q.Insert(taskWithDeadline(3, base, time.Millisecond)))

	first, _ := q.TryTake()
	assert.Equal(t, TaskID(3), first.ID)
	for _, want := range ids {
		got, ok := q.TryTake()
		require.True(t, ok)
		assert.Equal(t, want, got.ID)
	}
}

func TestWaitQueue_Remove(t *testing.T) {
	q := NewWaitQueue()
	base := time.Now()
	a := taskWithDeadline(1, base, 10*time.Millisecond)
	b := taskWithDeadline(2, base, 20*time.Millisecond)
	c := taskWithDeadline(3, base, 30*time.Millisecond)
	for _, task := range []*Task{a, b, c} {
		require.NoError(t, q.Insert(task))
	}

	assert.True(t, q.Remove(b))
	assert.False(t, q.Remove(b), "second removal is a no-op")
	assert.False(t, q.Remove(taskWithDeadline(99, base, 0)))

	got := q.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, TaskID(1), got[0].ID)
	assert.Equal(t, TaskID(3), got[1].ID)
	assert.Zero(t, q.Len())
}

func TestWaitQueue_InsertRejects(t *testing.T) {
	q := NewWaitQueue()

	assert.ErrorIs(t, q.Insert(NewTask(1, nil)), ErrNoDeadline)

	task := taskWithDeadline(2, time.Now(), time.Second)
	require.NoError(t, q.Insert(task))
	assert.ErrorIs(t, q.Insert(task), ErrAlreadyQueued)
	assert.Equal(t, PhaseQueued, task.Phase())
}

func TestWaitQueue_PeekDoesNotRemove(t *testing.T) {
	q := NewWaitQueue()
	_, ok := q.Peek()
	assert.False(t, ok)

	require.NoError(t, q.Insert(taskWithDeadline(1, time.Now(), time.Second)))
	head, ok := q.Peek()
	require.True(t, ok)
	assert.Equal(t, TaskID(1), head.ID)
	assert.Equal(t, 1, q.Len())
}

func TestWaitQueue_TakeBlocksUntilInsert(t *testing.T) {
	q := NewWaitQueue()
	got := make(chan *Task, 1)
	go func() {
		task, err := q.Take(context.Background())
		if err == nil {
			got <- task
		}
	}()

	select {
	case <-got:
		t.Fatal("Take returned on an empty queue")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Insert(taskWithDeadline(7, time.Now(), time.Second)))
	select {
	case task := <-got:
		assert.Equal(t, TaskID(7), task.ID)
	case <-time.After(time.Second):
		t.Fatal("Take did not wake after insert")
	}
}

func TestWaitQueue_TakeCancelled(t *testing.T) {
	q := NewWaitQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	task, err := q.Take(ctx)
	assert.Nil(t, task)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitQueue_ConcurrentMutations(t *testing.T) {
	q := NewWaitQueue()
	base := time.Now()
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				id := TaskID(p*perProducer + i + 1)
				task := taskWithDeadline(id, base, time.Duration(rand.IntN(1000))*time.Millisecond)
				if err := q.Insert(task); err != nil {
					t.Error(err)
					return
				}
				if i%5 == 0 {
					q.Remove(task)
				}
			}
		}(p)
	}
	wg.Wait()

	removed := producers * ((perProducer + 4) / 5)
	require.Equal(t, producers*perProducer-removed, q.Len())

	seen := map[TaskID]bool{}
	prev := time.Time{}
	for _, task := range q.Drain() {
		assert.False(t, seen[task.ID])
		seen[task.ID] = true
		assert.False(t, task.Deadline().Before(prev))
		prev = task.Deadline()
	}
}
