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

// timeoutEntry is one armed deadline. Entries order by deadline, with the
// id breaking ties.
type timeoutEntry struct {
	id       uint64
	deadline int64
	t        *Task
}

// TimeoutRegistry wakes blocked tasks whose deadlines pass. A timeout
// delivers a plain wakeup: the woken wait reports that it was not notified,
// and the caller checks the clock.
type TimeoutRegistry struct {
	mu      locking.Mutex
	nextID  uint64
	entries *btree.BTreeG[*timeoutEntry]

	// changed is kicked when an earlier deadline is armed, so the timer
	// loop can shorten its sleep.
	changed chan struct{}
}

func newTimeoutRegistry() *TimeoutRegistry {
	r := &TimeoutRegistry{
		entries: btree.NewG(8, func(a, b *timeoutEntry) bool {
			if a.deadline != b.deadline {
				return a.deadline < b.deadline
			}
			return a.id < b.id
		}),
		changed: make(chan struct{}, 1),
	}
	r.mu.Init(timeoutsClass)
	return r
}

// Add arms a wakeup for t at the given monotonic deadline and returns a
// handle for Cancel.
func (r *TimeoutRegistry) Add(t *Task, deadline int64) uint64 {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.entries.ReplaceOrInsert(&timeoutEntry{id: id, deadline: deadline, t: t})
	first := false
	if e, ok := r.entries.Min(); ok && e.id == id {
		first = true
	}
	r.mu.Unlock()
	if first {
		select {
		case r.changed <- struct{}{}:
		default:
		}
	}
	return id
}

// Cancel disarms a timeout, returning whether it was still armed.
func (r *TimeoutRegistry) Cancel(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *timeoutEntry
	r.entries.Ascend(func(e *timeoutEntry) bool {
		if e.id == id {
			found = e
			return false
		}
		return true
	})
	if found == nil {
		return false
	}
	r.entries.Delete(found)
	return true
}

// Len returns the number of armed timeouts.
func (r *TimeoutRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries.Len()
}

// Expire fires every timeout with deadline at or before now, returning the
// number fired. Expired entries are collected under the lock but woken
// outside it, since waking re-enters the scheduler.
func (r *TimeoutRegistry) Expire(now int64) int {
	r.mu.Lock()
	var due []*timeoutEntry
	for {
		e, ok := r.entries.Min()
		if !ok || e.deadline > now {
			break
		}
		r.entries.Delete(e)
		due = append(due, e)
	}
	r.mu.Unlock()

	for _, e := range due {
		e.t.unblock(false)
	}
	return len(due)
}

// nextDeadline returns the earliest armed deadline, if any.
func (r *TimeoutRegistry) nextDeadline() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries.Min(); ok {
		return e.deadline, true
	}
	return 0, false
}

// timeoutLoop drives the registry off the real clock. It sleeps until the
// earliest deadline, or idles until one is armed.
func (k *Kernel) timeoutLoop() {
	const idleWait = time.Second
	timer := time.NewTimer(idleWait)
	defer timer.Stop()
	for {
		wait := idleWait
		if deadline, ok := k.timeouts.nextDeadline(); ok {
			wait = time.Duration(deadline - monotonicNow())
			if wait < 0 {
				wait = 0
			}
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)
		select {
		case <-k.stop:
			return
		case <-k.timeouts.changed:
		case <-timer.C:
			k.timeouts.Expire(monotonicNow())
		}
	}
}
