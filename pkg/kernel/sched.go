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
	"math"
	"sync/atomic"

	"ordos.dev/ordos/pkg/log"
)

const (
	cpuRunning = iota
	cpuIdle
)

// idlePriority sorts after every real priority, so an idle CPU always loses
// the preemption comparison.
const idlePriority = math.MaxUint32

// switchStats accumulates dispatch latency, the cost of choosing and
// switching to the next task.
type switchStats struct {
	switches atomic.Uint64
	totalNs  atomic.Int64
	minNs    atomic.Int64
	maxNs    atomic.Int64
}

func (s *switchStats) record(ns int64) {
	s.switches.Add(1)
	s.totalNs.Add(ns)
	for {
		min := s.minNs.Load()
		if min != 0 && ns >= min {
			break
		}
		if s.minNs.CompareAndSwap(min, ns) {
			break
		}
	}
	for {
		max := s.maxNs.Load()
		if ns <= max {
			break
		}
		if s.maxNs.CompareAndSwap(max, ns) {
			break
		}
	}
}

// SwitchStats is a point-in-time snapshot of one CPU's dispatch costs.
type SwitchStats struct {
	Switches uint64
	MinNs    int64
	MaxNs    int64
	AvgNs    int64
}

func (s *switchStats) snapshot() SwitchStats {
	n := s.switches.Load()
	out := SwitchStats{
		Switches: n,
		MinNs:    s.minNs.Load(),
		MaxNs:    s.maxNs.Load(),
	}
	if n > 0 {
		out.AvgNs = s.totalNs.Load() / int64(n)
	}
	return out
}

// CPU is one logical processor. Exactly one goroutine drives it at a time:
// either the task it granted the permit to, or its idle loop. curr and the
// accounting fields of tasks are only touched by that driver, with handoffs
// ordered through the permit and idleWake channels.
type CPU struct {
	id CPUID
	k  *Kernel

	rq   *runQueue
	curr *Task

	// state flips to cpuIdle only after curr is cleared; enqueuers that
	// observe cpuIdle kick idleWake.
	state atomic.Int32

	// currPrio mirrors the effective priority of the running task for
	// cross-CPU preemption checks. idlePriority when nothing runs.
	// currRT mirrors whether that task is real-time.
	currPrio atomic.Uint32
	currRT   atomic.Bool

	// sliceEnd is the monotonic time at which the current slice expires.
	sliceEnd atomic.Int64

	// idleWake kicks the idle loop. Capacity 1: a kick delivered while
	// one is already pending coalesces with it.
	idleWake chan struct{}

	preempt preemptState
	stats   switchStats
}

func newCPU(id CPUID, k *Kernel) *CPU {
	c := &CPU{
		id:       id,
		k:        k,
		rq:       newRunQueue(),
		idleWake: make(chan struct{}, 1),
	}
	c.currPrio.Store(idlePriority)
	c.state.Store(cpuIdle)
	return c
}

// kickIdle nudges the idle loop to rescan the queue. Safe from any
// goroutine; redundant kicks coalesce.
func (c *CPU) kickIdle() {
	select {
	case c.idleWake <- struct{}{}:
	default:
	}
}

// ID returns the CPU's index.
func (c *CPU) ID() CPUID { return c.id }

// Stats returns a snapshot of the CPU's dispatch statistics.
func (c *CPU) Stats() SwitchStats { return c.stats.snapshot() }

// QueueLen returns the number of tasks waiting on this CPU.
func (c *CPU) QueueLen() int { return c.rq.len() }

// shouldPreempt reports whether the queue head should displace the running
// task. Only real-time arrivals preempt: they beat any fair occupant, and a
// real-time occupant only on strictly higher priority. Fair arrivals wait
// for slice expiry. An occasional spurious true only costs a dispatch pass
// that re-selects the current task.
func (c *CPU) shouldPreempt() bool {
	prio, realtime, ok := c.rq.headPriority()
	if !ok || !realtime {
		return false
	}
	if !c.currRT.Load() {
		return true
	}
	return uint32(prio) < c.currPrio.Load()
}

// needsResched reports whether the running task should yield: either a
// reschedule was requested, or its slice expired with other work queued.
// Always false while preemption is disabled.
func (c *CPU) needsResched(now int64) bool {
	if !c.preempt.enabled() {
		return false
	}
	if c.preempt.needResched.Load() {
		return true
	}
	return now >= c.sliceEnd.Load() && c.rq.len() > 0
}

// scheduleNext accounts the outgoing task, picks the next one, and marks it
// running. It returns nil when the CPU goes idle. Stealing from other CPUs
// is attempted before idling.
//
// Preconditions: called by the CPU's current driver goroutine.
func (c *CPU) scheduleNext() *Task {
	start := monotonicNow()

	if prev := c.curr; prev != nil {
		c.account(prev, start)
		c.curr = nil
	}
	c.preempt.takeNeedResched()

	next := c.rq.pop()
	if next == nil {
		next = c.k.steal(c)
	}
	if next == nil {
		// Publish idle, then re-check the queue. An enqueue that saw
		// the running state and skipped its kick must have added its
		// task before this check; the self-kick covers it. Only the
		// idle loop pops after this point, so there is exactly one
		// driver.
		c.currPrio.Store(idlePriority)
		c.currRT.Store(false)
		c.state.Store(cpuIdle)
		if c.rq.len() > 0 {
			c.kickIdle()
		}
		return nil
	}

	if !next.status.CompareAndSwap(int32(TaskRunnable), int32(TaskRunning)) {
		panic(fmt.Sprintf("dispatching task %d in status %v", next.id, next.Status()))
	}
	c.curr = next
	c.state.Store(cpuRunning)
	next.cpu.Store(int32(c.id))
	c.currPrio.Store(uint32(next.priority.Effective()))
	c.currRT.Store(next.realtime)

	now := monotonicNow()
	next.switchTime = now
	c.sliceEnd.Store(now + c.k.timeSlice(next))
	c.stats.record(now - start)
	return next
}

// account charges prev for its run and, if it is still runnable, puts it
// back in the queue. Fair tasks advance their virtual deadline in
// proportion to elapsed time, scaled so higher priority advances slower.
func (c *CPU) account(prev *Task, now int64) {
	elapsed := now - prev.switchTime
	if elapsed < 0 {
		elapsed = 0
	}
	prev.cpuTime += elapsed
	if !prev.realtime {
		weighted := uint64(elapsed) * (uint64(prev.priority.Effective()) + 1) / (uint64(PriorityNormal) + 1)
		prev.virtualDeadline = satAddU64(prev.virtualDeadline, weighted)
	}
	if prev.status.CompareAndSwap(int32(TaskRunning), int32(TaskRunnable)) {
		if prev.queued.CompareAndSwap(false, true) {
			c.rq.enqueue(prev)
		}
	}
	// The switch has retired; wakers may now move the task to another
	// CPU.
	prev.switching.Store(false)
}

// dispatch switches away from prev. It returns when prev is next granted
// the CPU. If prev is chosen again immediately, no switch happens.
func (c *CPU) dispatch(prev *Task) {
	next := c.scheduleNext()
	if next == prev {
		return
	}
	c.k.platform.SwitchTo(prev, next)
}

// idle is the CPU's driver while no task runs. Each kick re-runs the
// scheduler; if a task is found the CPU hands itself over and waits for
// the next idle transition.
func (c *CPU) idle(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-c.idleWake:
		}
		// Claim the CPU before driving it. A kick that lost the race
		// to a concurrent driver is dropped; that driver will see the
		// queued work itself.
		if !c.state.CompareAndSwap(cpuIdle, cpuRunning) {
			continue
		}
		if next := c.scheduleNext(); next != nil {
			log.Debugf("cpu%d: leaving idle for task %d (%s)", c.id, next.ID(), next.Name())
			c.k.platform.SwitchToFirst(next)
		}
	}
}
