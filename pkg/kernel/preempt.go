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
	"sync/atomic"
)

// preemptState tracks per-CPU preemption control. Disabling nests; a
// reschedule requested while disabled is remembered and honored when the
// outermost enable runs.
type preemptState struct {
	count       atomic.Int32
	needResched atomic.Bool
}

// disable forbids preemption on this CPU until a matching enable.
func (p *preemptState) disable() {
	p.count.Add(1)
}

// enable reverses one disable. It returns whether a reschedule became due
// while preemption was off, so the caller can yield promptly.
func (p *preemptState) enable() bool {
	n := p.count.Add(-1)
	if n < 0 {
		panic("preemption enabled more times than disabled")
	}
	return n == 0 && p.needResched.Load()
}

// enabled returns whether preemption is currently allowed.
func (p *preemptState) enabled() bool {
	return p.count.Load() == 0
}

// setNeedResched records that the CPU should reschedule at the next
// opportunity.
func (p *preemptState) setNeedResched() {
	p.needResched.Store(true)
}

// takeNeedResched consumes a pending reschedule request, returning whether
// one was set.
func (p *preemptState) takeNeedResched() bool {
	return p.needResched.Swap(false)
}

// DisablePreemption forbids involuntary rescheduling of t until a matching
// EnablePreemption. Calls nest.
//
// Preconditions: t is the calling goroutine's task.
func (t *Task) DisablePreemption() {
	t.k.cpu(t.CPU()).preempt.disable()
}

// EnablePreemption reverses one DisablePreemption. If a reschedule became
// due in the meantime, the task yields immediately.
func (t *Task) EnablePreemption() {
	if t.k.cpu(t.CPU()).preempt.enable() {
		t.Yield()
	}
}
