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
	"time"

	"github.com/google/btree"

	"ordos.dev/ordos/pkg/sync/locking"
)

// notifyBoost is the completion boost granted to tasks woken by
// NotifyBoosted. It must outlast dispatch latency on a loaded host, or the
// boost lapses before the wakee ever runs.
const notifyBoost = 100 * time.Microsecond

// Unlocker is any guard that can be released exactly once, typically a
// locked Mutex wrapped by a caller.
type Unlocker interface {
	Unlock()
}

// waitBucket holds the waiters at one effective priority, in arrival order.
type waitBucket struct {
	prio  Priority
	tasks []*Task
}

// WaitCondition parks tasks until notified, waking them in priority order.
// Waiters are bucketed by their effective priority at the time they block;
// a task is in at most one bucket of at most one condition at a time.
type WaitCondition struct {
	mu      locking.Mutex
	buckets *btree.BTreeG[*waitBucket]
}

// NewWaitCondition returns an empty condition.
func NewWaitCondition() *WaitCondition {
	c := &WaitCondition{
		buckets: btree.NewG(4, func(a, b *waitBucket) bool { return a.prio < b.prio }),
	}
	c.mu.Init(waitCondClass)
	return c
}

// Wait blocks t until the condition is notified. guard, if non-nil, is
// released after t is safely parked in a bucket, so a wakeup between the
// caller's last check and the block cannot be lost. reason is reported while
// blocked.
//
// If interruptible, a pending interrupt makes Wait return false immediately,
// and a wakeup that was not produced by a notifier also reports false.
// Returns true iff the task was woken by Notify, NotifyBoosted or NotifyOne.
//
// Preconditions: t is the calling goroutine's task and is Running.
func (c *WaitCondition) Wait(t *Task, guard Unlocker, reason string, interruptible bool) bool {
	c.mu.Lock()
	if interruptible && t.interrupted.Load() {
		c.mu.Unlock()
		if guard != nil {
			guard.Unlock()
		}
		return false
	}
	// The task becomes wakeable at insert, but its goroutine keeps the
	// CPU until dispatch retires the switch; see Task.unblock.
	t.switching.Store(true)
	t.block(reason)
	c.insertLocked(t)
	c.mu.Unlock()

	if guard != nil {
		guard.Unlock()
	}

	t.k.cpu(t.CPU()).dispatch(t)

	// Retry-and-filter: if our entry is still parked here, the wakeup came
	// from somewhere else (interrupt or direct unblock) and we must clean
	// it up ourselves.
	c.mu.Lock()
	stale := c.removeLocked(t)
	c.mu.Unlock()
	return !stale
}

// Notify wakes every waiter, highest priority first. It returns the number
// of tasks woken. References to reaped tasks are dropped silently.
func (c *WaitCondition) Notify() int {
	return c.notify(false)
}

// NotifyBoosted wakes every waiter, highest priority first, granting each a
// short IPC-style completion boost. It returns the number of tasks woken.
func (c *WaitCondition) NotifyBoosted() int {
	return c.notify(true)
}

func (c *WaitCondition) notify(boost bool) int {
	c.mu.Lock()
	var woken []*Task
	c.buckets.Ascend(func(b *waitBucket) bool {
		for _, t := range b.tasks {
			if t.alive.Load() {
				woken = append(woken, t)
			}
		}
		return true
	})
	c.buckets.Clear(false)
	c.mu.Unlock()

	for _, t := range woken {
		t.unblock(boost)
	}
	return len(woken)
}

// NotifyOne wakes the single highest-priority waiter, if any, and returns
// whether one was woken. Used by mutual-exclusion release, which admits
// exactly one successor.
func (c *WaitCondition) NotifyOne() bool {
	c.mu.Lock()
	var next *Task
	for next == nil {
		b, ok := c.buckets.Min()
		if !ok {
			break
		}
		for len(b.tasks) > 0 && next == nil {
			t := b.tasks[0]
			b.tasks = b.tasks[1:]
			if t.alive.Load() {
				next = t
			}
		}
		if len(b.tasks) == 0 {
			c.buckets.Delete(b)
		}
	}
	c.mu.Unlock()

	if next == nil {
		return false
	}
	next.unblock(false)
	return true
}

// Empty returns whether the condition has no waiters.
func (c *WaitCondition) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buckets.Len() == 0
}

// Waiters returns the number of parked tasks.
func (c *WaitCondition) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	c.buckets.Ascend(func(b *waitBucket) bool {
		n += len(b.tasks)
		return true
	})
	return n
}

// insertLocked parks t in the bucket matching its current effective
// priority.
//
// Preconditions: c.mu is locked.
func (c *WaitCondition) insertLocked(t *Task) {
	prio := t.priority.Effective()
	if b, ok := c.buckets.Get(&waitBucket{prio: prio}); ok {
		b.tasks = append(b.tasks, t)
		return
	}
	c.buckets.ReplaceOrInsert(&waitBucket{prio: prio, tasks: []*Task{t}})
}

// removeLocked removes t from whichever bucket holds it, returning whether
// it was found. The task's effective priority may have changed since it
// blocked, so every bucket is checked.
//
// Preconditions: c.mu is locked.
func (c *WaitCondition) removeLocked(t *Task) bool {
	found := false
	var empty *waitBucket
	c.buckets.Ascend(func(b *waitBucket) bool {
		for i, w := range b.tasks {
			if w == t {
				b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
				found = true
				if len(b.tasks) == 0 {
					empty = b
				}
				return false
			}
		}
		return true
	})
	if empty != nil {
		c.buckets.Delete(empty)
	}
	return found
}
