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
	"errors"

	"ordos.dev/ordos/pkg/sync/locking"
)

var (
	// ErrWouldBlock is returned by non-blocking receives on an empty queue.
	ErrWouldBlock = errors.New("operation would block")

	// ErrInterrupted is returned when a blocking receive is cut short by
	// an interrupt delivered to the receiving task.
	ErrInterrupted = errors.New("wait interrupted")
)

// WaitQueue is a FIFO message queue whose receivers block on a priority
// ordered condition. Senders never block.
type WaitQueue[T any] struct {
	mu    locking.Mutex
	items []T
	cond  *WaitCondition
}

// NewWaitQueue returns an empty queue.
func NewWaitQueue[T any]() *WaitQueue[T] {
	q := &WaitQueue[T]{cond: NewWaitCondition()}
	q.mu.Init(waitQueueClass)
	return q
}

// Send appends item and wakes all receivers. Woken receivers race for the
// queue; losers go back to waiting. Returns whether any receiver was woken.
func (q *WaitQueue[T]) Send(item T) bool {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return q.cond.Notify() > 0
}

// SendBoosted appends item and wakes all receivers with an IPC completion
// boost, favoring a prompt reply on the receiving side.
func (q *WaitQueue[T]) SendBoosted(item T) bool {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	return q.cond.NotifyBoosted() > 0
}

// TryReceive removes and returns the oldest item without blocking. It
// returns ErrWouldBlock if the queue is empty.
func (q *WaitQueue[T]) TryReceive() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Receive removes and returns the oldest item, blocking t until one is
// available. It returns ErrInterrupted if t is interrupted before an item
// arrives.
func (q *WaitQueue[T]) Receive(t *Task) (T, error) {
	for {
		q.mu.Lock()
		item, err := q.popLocked()
		if err == nil {
			q.mu.Unlock()
			return item, nil
		}
		// The queue lock doubles as the wait guard: it is held until t
		// is parked, so a Send between the emptiness check and the
		// block cannot be lost.
		if !q.cond.Wait(t, &q.mu, "waitqueue receive", true) {
			if t.interrupted.Load() {
				var zero T
				return zero, ErrInterrupted
			}
		}
	}
}

// Len returns the number of queued items.
func (q *WaitQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Preconditions: q.mu is locked.
func (q *WaitQueue[T]) popLocked() (T, error) {
	if len(q.items) == 0 {
		var zero T
		return zero, ErrWouldBlock
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}
