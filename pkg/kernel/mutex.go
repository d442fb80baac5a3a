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
	"fmt"
	"sync"
	"sync/atomic"

	"ordos.dev/ordos/pkg/sync/locking"
)

// lockIDs hands out donation keys. Each lock instance gets a stable key so
// that priority donated through it can be withdrawn exactly when that lock
// is released, independent of any other lock the holder may hold.
var lockIDs atomic.Uint64

// Mutex is a priority-inheriting mutual exclusion lock. A blocked waiter
// with higher effective priority than the holder donates its priority to
// the holder for as long as the lock is held.
//
// Every Mutex carries a lock class: acquisitions must follow ascending
// class levels, checked when built with the lockdep tag.
type Mutex struct {
	id    uint64
	class *locking.Class

	// wmu orders holder publication against waiter parking so a release
	// between a failed acquire and the park cannot be lost.
	wmu    sync.Mutex
	holder atomic.Pointer[Task]
	cond   *WaitCondition
}

// NewMutex returns an unlocked mutex of the given class. Classes above L5
// are reserved for kernel infrastructure.
func NewMutex(class *locking.Class) *Mutex {
	if class.Level() > locking.L5 {
		panic(fmt.Sprintf("lock class %s: level %d above L5", class.Name(), class.Level()))
	}
	return &Mutex{
		id:    lockIDs.Add(1),
		class: class,
		cond:  NewWaitCondition(),
	}
}

// TryLock attempts to acquire the mutex for t without blocking and returns
// whether it succeeded.
func (m *Mutex) TryLock(t *Task) bool {
	if !m.holder.CompareAndSwap(nil, t) {
		return false
	}
	locking.AddGLock(m.class, 0)
	return true
}

// Lock acquires the mutex for t, blocking until it is available. While
// blocked, t donates its effective priority to the current holder if that
// priority is higher.
func (m *Mutex) Lock(t *Task) {
	for {
		if m.TryLock(t) {
			return
		}
		m.wmu.Lock()
		h := m.holder.Load()
		if h == nil {
			// Released since the failed attempt.
			m.wmu.Unlock()
			continue
		}
		if h == t {
			panic(fmt.Sprintf("task %d: recursive lock of %s", t.ID(), m.class.Name()))
		}
		if p := t.priority.Effective(); p < h.priority.Effective() {
			h.priority.Inherit(m.id, p)
		}
		// Holding the lock is not optional, so the wait ignores
		// pending interrupts rather than spinning on them.
		m.cond.Wait(t, &m.wmu, "mutex "+m.class.Name(), false)
	}
}

// Unlock releases the mutex held by t, withdrawing any priority donated
// through it and admitting the highest-priority waiter.
//
// Preconditions: t holds m.
func (m *Mutex) Unlock(t *Task) {
	if m.holder.Load() != t {
		panic(fmt.Sprintf("task %d: unlock of %s not held by it", t.ID(), m.class.Name()))
	}
	m.wmu.Lock()
	m.holder.Store(nil)
	m.wmu.Unlock()
	t.priority.Restore(m.id)
	locking.DelGLock(m.class, 0)
	m.cond.NotifyOne()
}

// Holder returns the current holder, or nil. The result is immediately
// stale and only suitable for diagnostics.
func (m *Mutex) Holder() *Task {
	return m.holder.Load()
}

// RWLock is a priority-inheriting reader/writer lock. Writers exclude
// everyone; readers exclude writers only. A blocked writer donates to the
// writer or to every current reader; a blocked reader donates to the
// writer.
type RWLock struct {
	id    uint64
	class *locking.Class

	mu      sync.Mutex
	writer  *Task
	readers []*Task
	cond    *WaitCondition
}

// NewRWLock returns an unlocked reader/writer lock of the given class.
func NewRWLock(class *locking.Class) *RWLock {
	if class.Level() > locking.L5 {
		panic(fmt.Sprintf("lock class %s: level %d above L5", class.Name(), class.Level()))
	}
	return &RWLock{
		id:    lockIDs.Add(1),
		class: class,
		cond:  NewWaitCondition(),
	}
}

// Lock acquires l for writing on behalf of t, blocking until no other task
// holds it in any mode.
func (l *RWLock) Lock(t *Task) {
	for {
		l.mu.Lock()
		if l.writer == nil && len(l.readers) == 0 {
			l.writer = t
			l.mu.Unlock()
			locking.AddGLock(l.class, 0)
			return
		}
		p := t.priority.Effective()
		if w := l.writer; w != nil && p < w.priority.Effective() {
			w.priority.Inherit(l.id, p)
		}
		for _, r := range l.readers {
			if p < r.priority.Effective() {
				r.priority.Inherit(l.id, p)
			}
		}
		l.cond.Wait(t, &l.mu, "rwlock write "+l.class.Name(), false)
	}
}

// TryLock attempts a write acquisition without blocking.
func (l *RWLock) TryLock(t *Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil || len(l.readers) != 0 {
		return false
	}
	l.writer = t
	locking.AddGLock(l.class, 0)
	return true
}

// Unlock releases a write acquisition by t and wakes all waiters, letting
// readers race back in together.
//
// Preconditions: t holds l for writing.
func (l *RWLock) Unlock(t *Task) {
	l.mu.Lock()
	if l.writer != t {
		l.mu.Unlock()
		panic(fmt.Sprintf("task %d: write unlock of %s not held by it", t.ID(), l.class.Name()))
	}
	l.writer = nil
	l.mu.Unlock()
	t.priority.Restore(l.id)
	locking.DelGLock(l.class, 0)
	l.cond.Notify()
}

// RLock acquires l for reading on behalf of t, blocking while a writer
// holds it.
func (l *RWLock) RLock(t *Task) {
	for {
		l.mu.Lock()
		if l.writer == nil {
			l.readers = append(l.readers, t)
			l.mu.Unlock()
			locking.AddGLock(l.class, 0)
			return
		}
		w := l.writer
		if p := t.priority.Effective(); p < w.priority.Effective() {
			w.priority.Inherit(l.id, p)
		}
		l.cond.Wait(t, &l.mu, "rwlock read "+l.class.Name(), false)
	}
}

// TryRLock attempts a read acquisition without blocking.
func (l *RWLock) TryRLock(t *Task) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writer != nil {
		return false
	}
	l.readers = append(l.readers, t)
	locking.AddGLock(l.class, 0)
	return true
}

// RUnlock releases a read acquisition by t. The last reader out wakes all
// waiters so a pending writer can get in.
//
// Preconditions: t holds l for reading.
func (l *RWLock) RUnlock(t *Task) {
	l.mu.Lock()
	found := false
	for i, r := range l.readers {
		if r == t {
			l.readers = append(l.readers[:i], l.readers[i+1:]...)
			found = true
			break
		}
	}
	last := found && len(l.readers) == 0
	l.mu.Unlock()
	if !found {
		panic(fmt.Sprintf("task %d: read unlock of %s not held by it", t.ID(), l.class.Name()))
	}
	t.priority.Restore(l.id)
	locking.DelGLock(l.class, 0)
	if last {
		l.cond.Notify()
	}
}
