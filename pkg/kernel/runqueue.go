// Copyright 2026 The Ordos Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kernel

import (
	"github.com/emirpasic/gods/trees/redblacktree"

	"ordos.dev/ordos/pkg/sync/locking"
)

// rtEntry is a queued real-time task. Entries order by effective priority
// at enqueue time, then by arrival, so equal-priority tasks round-robin.
type rtEntry struct {
	t    *Task
	prio Priority
	seq  uint64
}

// fairKey orders the fair tree by virtual deadline, with the arrival
// sequence breaking ties so insertion order is stable.
type fairKey struct {
	deadline uint64
	seq      uint64
}

func fairKeyCompare(a, b interface{}) int {
	ka, kb := a.(fairKey), b.(fairKey)
	switch {
	case ka.deadline < kb.deadline:
		return -1
	case ka.deadline > kb.deadline:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// runQueue holds the runnable tasks of one CPU. Real-time tasks live in a
// small priority-ordered slice and always dispatch before fair tasks, which
// live in a tree keyed by virtual deadline.
type runQueue struct {
	mu locking.Mutex

	seq  uint64
	rt   []rtEntry
	fair *redblacktree.Tree

	// curDeadline is the virtual deadline of the fair task dispatched
	// most recently. New tasks start here so they neither dominate the
	// queue nor starve behind it.
	curDeadline uint64
}

func newRunQueue() *runQueue {
	q := &runQueue{
		fair: redblacktree.NewWith(fairKeyCompare),
	}
	q.mu.Init(runQueueClass)
	return q
}

// enqueue adds t, positioned by effective priority (real-time) or virtual
// deadline (fair), with arrival order breaking ties.
//
// Preconditions: t.queued was transitioned false to true by the caller.
func (q *runQueue) enqueue(t *Task) {
	prio := t.priority.Effective()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	if t.IsRealtime() {
		e := rtEntry{t: t, prio: prio, seq: q.seq}
		i := len(q.rt)
		for j, cur := range q.rt {
			if prio < cur.prio {
				i = j
				break
			}
		}
		q.rt = append(q.rt, rtEntry{})
		copy(q.rt[i+1:], q.rt[i:])
		q.rt[i] = e
		return
	}
	q.fair.Put(fairKey{deadline: t.virtualDeadline, seq: q.seq}, t)
}

// pop removes and returns the next task to run: the head real-time entry
// if any, otherwise the fair task with the earliest virtual deadline.
// Returns nil if the queue is empty.
func (q *runQueue) pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.rt) > 0 {
		t := q.rt[0].t
		q.rt = q.rt[1:]
		t.queued.Store(false)
		return t
	}
	if node := q.fair.Left(); node != nil {
		t := node.Value.(*Task)
		q.curDeadline = node.Key.(fairKey).deadline
		q.fair.Remove(node.Key)
		t.queued.Store(false)
		return t
	}
	return nil
}

// steal removes the fair task with the latest virtual deadline that may run
// on the target CPU, the task that would have waited longest anyway. Queues
// with fewer than two fair tasks and all real-time tasks are off limits:
// real-time placement is explicit, never load-balanced.
func (q *runQueue) steal(target CPUID) *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fair.Size() < 2 {
		return nil
	}
	node := q.fair.Right()
	t := node.Value.(*Task)
	if !t.allowedOn(target) {
		return nil
	}
	q.fair.Remove(node.Key)
	t.queued.Store(false)
	return t
}

// remove takes t out of the queue if present, returning whether it was
// found. Used when affinity changes move a queued task away from a CPU.
func (q *runQueue) remove(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.rt {
		if e.t == t {
			q.rt = append(q.rt[:i], q.rt[i+1:]...)
			t.queued.Store(false)
			return true
		}
	}
	it := q.fair.Iterator()
	for it.Next() {
		if it.Value().(*Task) == t {
			q.fair.Remove(it.Key())
			t.queued.Store(false)
			return true
		}
	}
	return false
}

// headPriority reports the effective priority of the next task to run and
// whether it is real-time. ok is false when the queue is empty.
func (q *runQueue) headPriority() (prio Priority, realtime bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.rt) > 0 {
		return q.rt[0].prio, true, true
	}
	if node := q.fair.Left(); node != nil {
		return node.Value.(*Task).priority.Effective(), false, true
	}
	return 0, false, false
}

func (q *runQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.rt) + q.fair.Size()
}

func (q *runQueue) fairLen() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fair.Size()
}

// currentDeadline is the baseline virtual deadline for tasks joining this
// queue.
func (q *runQueue) currentDeadline() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.curDeadline
}
