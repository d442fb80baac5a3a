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
	"github.com/google/btree"

	"ordos.dev/ordos/pkg/sync/locking"
)

// TaskSet is the global task table, mapping TIDs to live tasks. Tasks are
// inserted on spawn and removed on reap.
type TaskSet struct {
	mu    locking.RWMutex
	tasks *btree.BTreeG[*Task]
}

func newTaskSet() *TaskSet {
	ts := &TaskSet{
		tasks: btree.NewG(8, func(a, b *Task) bool { return a.id < b.id }),
	}
	ts.mu.Init(taskSetClass)
	return ts
}

// Lookup returns the task with the given TID, or nil.
func (ts *TaskSet) Lookup(id TID) *Task {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if t, ok := ts.tasks.Get(&Task{id: id}); ok {
		return t
	}
	return nil
}

// Len returns the number of live tasks.
func (ts *TaskSet) Len() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.tasks.Len()
}

// ForEach calls f on every live task in TID order, stopping early if f
// returns false.
func (ts *TaskSet) ForEach(f func(*Task) bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	ts.tasks.Ascend(func(t *Task) bool {
		return f(t)
	})
}

func (ts *TaskSet) insert(t *Task) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, dup := ts.tasks.ReplaceOrInsert(t); dup {
		panic("kernel: duplicate TID in task table")
	}
}

func (ts *TaskSet) remove(id TID) *Task {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.tasks.Delete(&Task{id: id}); ok {
		return t
	}
	return nil
}
