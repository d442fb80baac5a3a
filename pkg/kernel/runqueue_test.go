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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newQueueTask builds a detached task for queue-level tests.
func newQueueTask(id TID, prio Priority, realtime bool) *Task {
	t := &Task{
		id:       id,
		realtime: realtime,
		priority: NewPriorityTracker(prio),
	}
	aff := AllCPUs(MaxCPUs)
	t.affinity.Store(&aff)
	t.alive.Store(true)
	t.mu.Init(taskClass)
	return t
}

func enqueueAll(q *runQueue, tasks ...*Task) {
	for _, t := range tasks {
		t.queued.Store(true)
		q.enqueue(t)
	}
}

func popIDs(q *runQueue) []TID {
	var ids []TID
	for {
		t := q.pop()
		if t == nil {
			return ids
		}
		ids = append(ids, t.id)
	}
}

func TestPopEmpty(t *testing.T) {
	q := newRunQueue()
	if got := q.pop(); got != nil {
		t.Errorf("pop() on empty queue = task %d, want nil", got.id)
	}
}

func TestRealtimeBeforeFair(t *testing.T) {
	q := newRunQueue()
	fair := newQueueTask(1, PriorityHigh, false)
	rt := newQueueTask(2, PriorityLow, true)
	enqueueAll(q, fair, rt)

	// The real-time task wins despite its numerically worse priority.
	if got := popIDs(q); !cmp.Equal(got, []TID{2, 1}) {
		t.Errorf("pop order = %v, want [2 1]", got)
	}
}

func TestRealtimeOrderStable(t *testing.T) {
	q := newRunQueue()
	enqueueAll(q,
		newQueueTask(1, 5, true),
		newQueueTask(2, 2, true),
		newQueueTask(3, 8, true),
		newQueueTask(4, 2, true),
	)

	// Priority ascending, arrival order within a priority.
	if got := popIDs(q); !cmp.Equal(got, []TID{2, 4, 1, 3}) {
		t.Errorf("pop order = %v, want [2 4 1 3]", got)
	}
}

func TestFairOrderByDeadline(t *testing.T) {
	q := newRunQueue()
	a := newQueueTask(1, PriorityNormal, false)
	b := newQueueTask(2, PriorityNormal, false)
	c := newQueueTask(3, PriorityNormal, false)
	a.virtualDeadline = 300
	b.virtualDeadline = 100
	c.virtualDeadline = 200
	enqueueAll(q, a, b, c)

	if got := popIDs(q); !cmp.Equal(got, []TID{2, 3, 1}) {
		t.Errorf("pop order = %v, want [2 3 1]", got)
	}
}

func TestFairDeadlineTieIsFIFO(t *testing.T) {
	q := newRunQueue()
	a := newQueueTask(1, PriorityNormal, false)
	b := newQueueTask(2, PriorityNormal, false)
	a.virtualDeadline = 100
	b.virtualDeadline = 100
	enqueueAll(q, a, b)

	if got := popIDs(q); !cmp.Equal(got, []TID{1, 2}) {
		t.Errorf("pop order = %v, want [1 2]", got)
	}
}

func TestPopClearsQueuedFlag(t *testing.T) {
	q := newRunQueue()
	a := newQueueTask(1, PriorityNormal, false)
	enqueueAll(q, a)
	if got := q.pop(); got != a {
		t.Fatalf("pop() = %v, want task 1", got)
	}
	if a.queued.Load() {
		t.Error("queued flag still set after pop")
	}
}

func TestStealTakesLatestDeadline(t *testing.T) {
	q := newRunQueue()
	a := newQueueTask(1, PriorityNormal, false)
	b := newQueueTask(2, PriorityNormal, false)
	a.virtualDeadline = 100
	b.virtualDeadline = 200
	enqueueAll(q, a, b)

	if got := q.steal(1); got != b {
		t.Fatalf("steal() = %v, want task 2", got)
	}
	if got := q.len(); got != 1 {
		t.Errorf("len() after steal = %d, want 1", got)
	}
}

func TestStealLeavesLoneTask(t *testing.T) {
	q := newRunQueue()
	enqueueAll(q, newQueueTask(1, PriorityNormal, false))
	if got := q.steal(1); got != nil {
		t.Errorf("steal() from single-task queue = task %d, want nil", got.id)
	}
}

func TestStealIgnoresRealtime(t *testing.T) {
	q := newRunQueue()
	enqueueAll(q,
		newQueueTask(1, 2, true),
		newQueueTask(2, 5, true),
	)
	if got := q.steal(1); got != nil {
		t.Errorf("steal() from real-time queue = task %d, want nil", got.id)
	}
}

func TestStealHonorsAffinity(t *testing.T) {
	q := newRunQueue()
	a := newQueueTask(1, PriorityNormal, false)
	b := newQueueTask(2, PriorityNormal, false)
	b.virtualDeadline = 200
	var pinned CPUSet
	pinned.Add(0)
	b.affinity.Store(&pinned)
	enqueueAll(q, a, b)

	if got := q.steal(3); got != nil {
		t.Errorf("steal() of pinned task = task %d, want nil", got.id)
	}
}

func TestRemove(t *testing.T) {
	q := newRunQueue()
	rt := newQueueTask(1, 5, true)
	fair := newQueueTask(2, PriorityNormal, false)
	enqueueAll(q, rt, fair)

	if !q.remove(fair) {
		t.Error("remove(fair) = false, want true")
	}
	if !q.remove(rt) {
		t.Error("remove(rt) = false, want true")
	}
	if q.remove(rt) {
		t.Error("second remove(rt) = true, want false")
	}
	if got := q.len(); got != 0 {
		t.Errorf("len() = %d, want 0", got)
	}
}

func TestHeadPriority(t *testing.T) {
	q := newRunQueue()
	if _, _, ok := q.headPriority(); ok {
		t.Error("headPriority() on empty queue reported ok")
	}

	enqueueAll(q, newQueueTask(1, PriorityNormal, false))
	prio, realtime, ok := q.headPriority()
	if !ok || realtime || prio != PriorityNormal {
		t.Errorf("headPriority() = (%d, %v, %v), want (%d, false, true)", prio, realtime, ok, PriorityNormal)
	}

	enqueueAll(q, newQueueTask(2, 7, true))
	prio, realtime, ok = q.headPriority()
	if !ok || !realtime || prio != 7 {
		t.Errorf("headPriority() = (%d, %v, %v), want (7, true, true)", prio, realtime, ok)
	}
}

func TestCurrentDeadlineFollowsPop(t *testing.T) {
	q := newRunQueue()
	a := newQueueTask(1, PriorityNormal, false)
	a.virtualDeadline = 500
	enqueueAll(q, a)
	q.pop()
	if got := q.currentDeadline(); got != 500 {
		t.Errorf("currentDeadline() = %d, want 500", got)
	}
}
