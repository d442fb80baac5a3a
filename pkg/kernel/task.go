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
	"runtime"
	"sync/atomic"

	"ordos.dev/ordos/pkg/sync/locking"
)

// TID is a stable task identifier, unique for the task's lifetime.
type TID uint64

// TaskStatus is the coarse execution state of a task. A task is in exactly
// one run queue, or none, consistent with its status.
type TaskStatus int32

const (
	// TaskRunnable means the task is eligible to run and sits in a run
	// queue.
	TaskRunnable TaskStatus = iota

	// TaskRunning means the task is the current task of some CPU.
	TaskRunning

	// TaskBlocked means the task is parked on a wait condition.
	TaskBlocked

	// TaskExited means the task has finished and awaits reaping.
	TaskExited
)

func (s TaskStatus) String() string {
	switch s {
	case TaskRunnable:
		return "Runnable"
	case TaskRunning:
		return "Running"
	case TaskBlocked:
		return "Blocked"
	case TaskExited:
		return "Exited"
	default:
		return fmt.Sprintf("Invalid TaskStatus: %d", int32(s))
	}
}

// Task is a single thread of execution, the analogue of a kernel context.
// Its goroutine is driven by the permit channel: it runs only between being
// granted the permit by a CPU's dispatch and handing control off again.
type Task struct {
	id       TID
	name     string
	realtime bool
	k        *Kernel

	// priority is owned by this task, but is donated to from other tasks'
	// goroutines.
	priority *PriorityTracker

	status atomic.Int32

	// virtualDeadline orders this task in the fair queue. It never
	// decreases. Written only by the dispatching CPU while accounting.
	virtualDeadline uint64

	// switchTime is when the task last started running; cpuTime
	// accumulates total run time. Both written only by the dispatching
	// CPU.
	switchTime int64
	cpuTime    int64

	// cpu is the task's current CPU while Running, and its last CPU
	// otherwise, used as a cache-locality placement hint.
	cpu atomic.Int32

	// interrupted is the pending-signal analogue, observed by
	// interruptible waits.
	interrupted atomic.Bool

	// alive is cleared at exit so stale wait-condition references drop
	// silently instead of waking a reaped task.
	alive atomic.Bool

	// queued is set while the task sits in a run queue, preventing
	// double insertion when an unblock races with dispatch accounting.
	queued atomic.Bool

	// switching is set from block until the task's CPU retires the
	// outgoing context. While set, the goroutine still owns its CPU and
	// the task must not be enqueued where another CPU could claim it.
	switching atomic.Bool

	// permit grants the task goroutine the right to run. Capacity 1, so
	// a wakeup issued before the task parks is never lost.
	permit chan struct{}

	// affinity is the set of CPUs the task may run on. Read lock-free on
	// steal and placement paths.
	affinity atomic.Pointer[CPUSet]

	mu            locking.Mutex
	blockedReason string

	fn func(*Task)
}

// ID returns the task's identifier.
func (t *Task) ID() TID { return t.id }

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// IsRealtime returns whether the task is in the real-time scheduling class.
func (t *Task) IsRealtime() bool { return t.realtime }

// Priority returns the task's priority tracker.
func (t *Task) Priority() *PriorityTracker { return t.priority }

// Status returns the task's current status.
func (t *Task) Status() TaskStatus {
	return TaskStatus(t.status.Load())
}

// VirtualDeadline returns the task's current virtual deadline.
func (t *Task) VirtualDeadline() uint64 { return t.virtualDeadline }

// CPU returns the task's current or most recent CPU.
func (t *Task) CPU() CPUID {
	return CPUID(t.cpu.Load())
}

// CPUTime returns the task's accumulated run time in nanoseconds.
func (t *Task) CPUTime() int64 { return t.cpuTime }

// Affinity returns a copy of the task's allowed CPU set.
func (t *Task) Affinity() CPUSet {
	return *t.affinity.Load()
}

// SetAffinity replaces the task's allowed CPU set. At least one CPU must
// remain eligible. It does not migrate a task already running elsewhere;
// the new set applies at its next enqueue.
func (t *Task) SetAffinity(set CPUSet) error {
	set.ClearAbove(uint(t.k.NumCPUs()))
	if set.Empty() {
		return fmt.Errorf("affinity for task %d leaves no eligible CPU", t.id)
	}
	t.affinity.Store(&set)
	// Migrate the task if it is queued on a CPU the new set forbids. A
	// concurrent dispatch may win the race and pop it first, in which
	// case the new set simply applies at the next enqueue.
	if last := t.cpu.Load(); last >= 0 && !set.Contains(CPUID(last)) {
		if t.k.cpu(CPUID(last)).rq.remove(t) {
			t.k.enqueue(t)
		}
	}
	return nil
}

// allowedOn returns whether the task may run on the given CPU.
func (t *Task) allowedOn(id CPUID) bool {
	return t.affinity.Load().Contains(id)
}

// BlockedReason returns what the task is waiting on, or "" if it is not
// blocked. Diagnostic only; the answer may be stale by the time it returns.
func (t *Task) BlockedReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status() != TaskBlocked {
		return ""
	}
	return t.blockedReason
}

// Interrupt makes a pending interruptible wait return early, the analogue of
// signal delivery. If the task is currently blocked it is made runnable; its
// wait observes the pending flag and reports a signal wakeup.
func (t *Task) Interrupt() {
	t.interrupted.Store(true)
	t.unblock(false)
}

// ClearInterrupt consumes a pending interrupt, returning whether one was
// pending.
func (t *Task) ClearInterrupt() bool {
	return t.interrupted.Swap(false)
}

// block transitions the task to Blocked with the given reason.
//
// Preconditions: the task is Running on the calling goroutine.
func (t *Task) block(reason string) {
	t.mu.Lock()
	t.blockedReason = reason
	t.mu.Unlock()
	if !t.status.CompareAndSwap(int32(TaskRunning), int32(TaskBlocked)) {
		panic(fmt.Sprintf("task %d blocking while %v", t.id, t.Status()))
	}
}

// unblock transitions a Blocked task to Runnable and enqueues it on a CPU,
// optionally granting a short completion boost. It is a no-op for tasks in
// any other state, so racing wakers are harmless.
func (t *Task) unblock(boost bool) {
	if !t.status.CompareAndSwap(int32(TaskBlocked), int32(TaskRunnable)) {
		return
	}
	if boost {
		t.priority.BoostForIPC(notifyBoost)
	}
	// The blocking goroutine may still be on its CPU, between releasing
	// its wait guard and handing the CPU off. Enqueueing before the
	// switch retires would let another CPU grant the task a second
	// driver while the first is still accounting it.
	for t.switching.Load() {
		runtime.Gosched()
	}
	t.k.enqueue(t)
}

// Yield voluntarily gives up the CPU, re-entering the dispatch loop. The
// call returns once the task is next chosen to run.
func (t *Task) Yield() {
	t.k.cpu(t.CPU()).dispatch(t)
}

// SchedulePoint is a voluntary preemption point. It yields only if the
// owning CPU has a reschedule pending and preemption is enabled, so it is
// cheap enough for long-running kernel paths.
func (t *Task) SchedulePoint() {
	c := t.k.cpu(t.CPU())
	if c.needsResched(monotonicNow()) {
		t.Yield()
	}
}

// waitPermit parks the task goroutine until a CPU grants it the right to
// run again.
func (t *Task) waitPermit() {
	<-t.permit
}

// run is the task goroutine body.
func (t *Task) run() {
	t.waitPermit()
	t.fn(t)
	t.exit()
}

// exit marks the task dead, removes it from the task table, and hands the
// CPU to the next task. The goroutine returns without waiting for a permit.
func (t *Task) exit() {
	t.alive.Store(false)
	t.status.Store(int32(TaskExited))
	t.k.reap(t)
}
