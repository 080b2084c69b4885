package sched

import (
	"github.com/emirpasic/gods/trees/redblacktree"

	"picotask/internal/hal"
)

// wakeKey orders entries by deadline on the tick ring, then by registration.
type wakeKey struct {
	deadline hal.Tick
	seq      uint64
}

// cmpWake compares deadlines by signed difference so a counter rollover keeps
// the order. All live deadlines must be within 2^31 ticks of each other.
func cmpWake(a, b any) int {
	ka, kb := a.(wakeKey), b.(wakeKey)
	if d := int32(ka.deadline - kb.deadline); d != 0 {
		if d < 0 {
			return -1
		}
		return 1
	}
	switch {
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// TimerQueue holds the wake deadlines of waiting tasks. It is owned by the
// scheduler and used from task context only.
type TimerQueue struct {
	rbt  *redblacktree.Tree // wakeKey -> TaskID
	live map[TaskID]wakeKey
	seq  uint64
}

// NewTimerQueue returns an empty queue.
func NewTimerQueue() *TimerQueue {
	return &TimerQueue{
		rbt:  redblacktree.NewWith(cmpWake),
		live: make(map[TaskID]wakeKey),
	}
}

// SleepUntil registers a wake entry for id. A task has at most one entry.
func (q *TimerQueue) SleepUntil(id TaskID, deadline hal.Tick) error {
	if k, dup := q.live[id]; dup {
		return invariantf("", "task %d already waiting until %d", id, k.deadline)
	}
	q.seq++
	k := wakeKey{deadline: deadline, seq: q.seq}
	q.rbt.Put(k, id)
	q.live[id] = k
	return nil
}

// Cancel drops the entry for id, reporting whether there was one.
func (q *TimerQueue) Cancel(id TaskID) bool {
	k, ok := q.live[id]
	if !ok {
		return false
	}
	q.rbt.Remove(k)
	delete(q.live, id)
	return true
}

// Tick removes and returns every task whose deadline is at or before now,
// earliest deadline first and registration order among equals.
func (q *TimerQueue) Tick(now hal.Tick) []TaskID {
	var due []TaskID
	for {
		node := q.rbt.Left()
		if node == nil {
			return due
		}
		k := node.Key.(wakeKey)
		if !now.Reached(k.deadline) {
			return due
		}
		id := node.Value.(TaskID)
		q.rbt.Remove(k)
		delete(q.live, id)
		due = append(due, id)
	}
}

// Next returns the earliest deadline.
func (q *TimerQueue) Next() (hal.Tick, bool) {
	node := q.rbt.Left()
	if node == nil {
		return 0, false
	}
	return node.Key.(wakeKey).deadline, true
}

// Deadline returns the registered deadline for id.
func (q *TimerQueue) Deadline(id TaskID) (hal.Tick, bool) {
	k, ok := q.live[id]
	return k.deadline, ok
}

func (q *TimerQueue) Len() int { return q.rbt.Size() }
