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
	"time"
)

// quietKernel builds a kernel without starting its loops, for driving CPUs
// directly.
func quietKernel(t *testing.T, cpus int) *Kernel {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CPUs = cpus
	return New(cfg, NewGoPlatform())
}

func spawnDetached(k *Kernel, id TID, prio Priority, realtime bool) *Task {
	task := newQueueTask(id, prio, realtime)
	task.k = k
	return task
}

func TestScheduleNextPicksQueuedTask(t *testing.T) {
	installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	task := spawnDetached(k, 1, PriorityNormal, false)
	k.enqueue(task)

	got := c.scheduleNext()
	if got != task {
		t.Fatalf("scheduleNext() = %v, want task 1", got)
	}
	if got.Status() != TaskRunning {
		t.Errorf("status = %v, want Running", got.Status())
	}
	if got.CPU() != 0 {
		t.Errorf("task CPU = %d, want 0", got.CPU())
	}
	if c.currPrio.Load() != uint32(PriorityNormal) {
		t.Errorf("currPrio = %d, want %d", c.currPrio.Load(), PriorityNormal)
	}
}

func TestScheduleNextIdleTransition(t *testing.T) {
	installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	if got := c.scheduleNext(); got != nil {
		t.Fatalf("scheduleNext() on empty queue = task %d, want nil", got.id)
	}
	if c.state.Load() != cpuIdle {
		t.Error("CPU not idle after empty schedule")
	}
	if c.currPrio.Load() != idlePriority {
		t.Errorf("currPrio = %d, want idle sentinel", c.currPrio.Load())
	}
}

func TestAccountAdvancesVirtualDeadline(t *testing.T) {
	fc := installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	task := spawnDetached(k, 1, PriorityNormal, false)
	k.enqueue(task)

	if got := c.scheduleNext(); got != task {
		t.Fatalf("scheduleNext() = %v, want task 1", got)
	}
	before := task.virtualDeadline
	fc.advance(time.Millisecond)
	// The task is still runnable, so it is re-enqueued and re-selected.
	if got := c.scheduleNext(); got != task {
		t.Fatalf("second scheduleNext() = %v, want task 1", got)
	}
	if task.virtualDeadline <= before {
		t.Errorf("virtual deadline %d did not advance past %d", task.virtualDeadline, before)
	}
	if task.cpuTime != int64(time.Millisecond) {
		t.Errorf("cpuTime = %d, want %d", task.cpuTime, time.Millisecond)
	}
}

func TestHigherPriorityAdvancesSlower(t *testing.T) {
	fc := installFakeClock(t)
	k := quietKernel(t, 2)
	hi := spawnDetached(k, 1, 20, false)
	lo := spawnDetached(k, 2, PriorityLow, false)

	run := func(c *CPU, task *Task) uint64 {
		task.queued.Store(true)
		c.rq.enqueue(task)
		if got := c.scheduleNext(); got != task {
			t.Fatalf("scheduleNext() = %v, want task %d", got, task.id)
		}
		fc.advance(time.Millisecond)
		c.scheduleNext()
		return task.virtualDeadline
	}
	hiAdv := run(k.cpu(0), hi)
	loAdv := run(k.cpu(1), lo)
	if hiAdv >= loAdv {
		t.Errorf("high-priority deadline advance %d not below low-priority %d", hiAdv, loAdv)
	}
}

func TestRealtimeDeadlineUntouched(t *testing.T) {
	fc := installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	task := spawnDetached(k, 1, 5, true)
	k.enqueue(task)
	c.scheduleNext()
	fc.advance(time.Millisecond)
	c.scheduleNext()
	if task.virtualDeadline != 0 {
		t.Errorf("real-time task accumulated virtual deadline %d", task.virtualDeadline)
	}
}

func TestStealFromNeighbor(t *testing.T) {
	installFakeClock(t)
	k := quietKernel(t, 2)
	a := spawnDetached(k, 1, PriorityNormal, false)
	b := spawnDetached(k, 2, PriorityNormal, false)
	b.virtualDeadline = 100
	for _, task := range []*Task{a, b} {
		task.queued.Store(true)
		k.cpu(1).rq.enqueue(task)
	}

	got := k.cpu(0).scheduleNext()
	if got != b {
		t.Fatalf("idle CPU scheduled %v, want stolen task 2", got)
	}
	if got.CPU() != 0 {
		t.Errorf("stolen task CPU = %d, want 0", got.CPU())
	}
	if k.cpu(1).rq.len() != 1 {
		t.Errorf("victim queue length = %d, want 1", k.cpu(1).rq.len())
	}
}

func TestShouldPreempt(t *testing.T) {
	installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	running := spawnDetached(k, 1, PriorityNormal, false)
	k.enqueue(running)
	c.scheduleNext()

	if c.shouldPreempt() {
		t.Error("shouldPreempt() with empty queue = true")
	}

	// Fair arrivals never preempt, regardless of priority; they wait for
	// the running task's slice to expire.
	stronger := spawnDetached(k, 2, 50, false)
	k.enqueue(stronger)
	if c.shouldPreempt() {
		t.Error("shouldPreempt() for fair arrival = true")
	}

	rt := spawnDetached(k, 3, PriorityLow, true)
	k.enqueue(rt)
	if !c.shouldPreempt() {
		t.Error("shouldPreempt() for real-time arrival over fair task = false")
	}
}

func TestRealtimePreemptsOnlyStronger(t *testing.T) {
	installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	running := spawnDetached(k, 1, 10, true)
	k.enqueue(running)
	c.scheduleNext()

	weaker := spawnDetached(k, 2, 20, true)
	k.enqueue(weaker)
	if c.shouldPreempt() {
		t.Error("shouldPreempt() for weaker real-time arrival = true")
	}

	stronger := spawnDetached(k, 3, 5, true)
	k.enqueue(stronger)
	if !c.shouldPreempt() {
		t.Error("shouldPreempt() for stronger real-time arrival = false")
	}
}

func TestSpawnBaselinesAgainstPlacedQueue(t *testing.T) {
	k := quietKernel(t, 2)
	k.cpu(1).rq.curDeadline = 5000
	var pin CPUSet
	pin.Add(1)
	task, err := k.Spawn(TaskConfig{
		Name:     "pinned",
		Priority: PriorityNormal,
		Affinity: pin,
		Fn:       func(*Task) {},
	})
	if err != nil {
		t.Fatalf("Spawn(): %v", err)
	}
	if got := task.VirtualDeadline(); got != 5000 {
		t.Errorf("virtual deadline = %d, want the placed queue's baseline 5000", got)
	}
	if got := k.cpu(1).rq.len(); got != 1 {
		t.Errorf("placed queue length = %d, want 1", got)
	}
}

func TestRealtimeArrivalPreempts(t *testing.T) {
	installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	running := spawnDetached(k, 1, 10, false)
	k.enqueue(running)
	c.scheduleNext()

	rt := spawnDetached(k, 2, PriorityLow, true)
	k.enqueue(rt)
	if !c.shouldPreempt() {
		t.Error("shouldPreempt() for real-time arrival = false")
	}
	if !c.preempt.needResched.Load() {
		t.Error("enqueue of preempting task did not request a reschedule")
	}
}

func TestNeedsReschedRespectsSlice(t *testing.T) {
	fc := installFakeClock(t)
	k := quietKernel(t, 1)
	c := k.cpu(0)
	a := spawnDetached(k, 1, PriorityNormal, false)
	b := spawnDetached(k, 2, PriorityNormal, false)
	k.enqueue(a)
	k.enqueue(b)
	c.scheduleNext()

	if c.needsResched(monotonicNow()) {
		t.Error("needsResched() immediately after dispatch = true")
	}
	fc.advance(time.Duration(k.cfg.MaxTimeSliceNs) * 2)
	if !c.needsResched(monotonicNow()) {
		t.Error("needsResched() after slice expiry with queued work = false")
	}
}
