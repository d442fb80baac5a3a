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

// Package kernel implements the concurrency core: per-CPU hybrid
// real-time/fair scheduling, priority-inheriting ordered locks, and
// priority-bucketed wait conditions.
//
// Tasks are cooperative within a CPU: a running task keeps its logical CPU
// until it yields, blocks, exits, or passes a SchedulePoint with a
// reschedule pending. Across CPUs, idle processors steal fair work from
// loaded ones.
package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"ordos.dev/ordos/pkg/log"
)

// Kernel owns the CPUs, the task table, and the timeout registry.
type Kernel struct {
	cfg      Config
	platform Platform

	cpus  []*CPU
	tasks *TaskSet

	timeouts *TimeoutRegistry

	nextTID atomic.Uint64

	// taskWG tracks live task goroutines; idleWG tracks idle loops.
	taskWG sync.WaitGroup
	idleWG sync.WaitGroup

	stop     chan struct{}
	shutdown sync.Once
}

// New creates a kernel with the given configuration and platform. The
// configuration must already be validated; see LoadConfig.
func New(cfg Config, p Platform) *Kernel {
	k := &Kernel{
		cfg:      cfg,
		platform: p,
		tasks:    newTaskSet(),
		timeouts: newTimeoutRegistry(),
		stop:     make(chan struct{}),
	}
	for i := 0; i < cfg.CPUs; i++ {
		k.cpus = append(k.cpus, newCPU(CPUID(i), k))
	}
	return k
}

// Start launches the idle loops. It must be called once before Spawn.
func (k *Kernel) Start() {
	for _, c := range k.cpus {
		k.idleWG.Add(1)
		go func(c *CPU) {
			defer k.idleWG.Done()
			c.idle(k.stop)
		}(c)
	}
	k.idleWG.Add(1)
	go func() {
		defer k.idleWG.Done()
		k.timeoutLoop()
	}()
	log.Infof("kernel started with %d CPUs", len(k.cpus))
}

// Wait blocks until every spawned task has exited.
func (k *Kernel) Wait() {
	k.taskWG.Wait()
}

// Shutdown stops the idle loops. Tasks still blocked stay parked; callers
// normally Wait first.
func (k *Kernel) Shutdown() {
	k.shutdown.Do(func() { close(k.stop) })
	k.idleWG.Wait()
	log.Infof("kernel stopped")
}

// NumCPUs returns the number of logical CPUs.
func (k *Kernel) NumCPUs() int { return len(k.cpus) }

// cpu returns the CPU with the given index.
func (k *Kernel) cpu(id CPUID) *CPU { return k.cpus[id] }

// CPUStats returns per-CPU dispatch statistics, indexed by CPU.
func (k *Kernel) CPUStats() []SwitchStats {
	out := make([]SwitchStats, len(k.cpus))
	for i, c := range k.cpus {
		out[i] = c.Stats()
	}
	return out
}

// Tasks returns the live task table.
func (k *Kernel) Tasks() *TaskSet { return k.tasks }

// Timeouts returns the timeout registry.
func (k *Kernel) Timeouts() *TimeoutRegistry { return k.timeouts }

// TaskConfig describes a task to spawn. A zero Affinity means all CPUs.
type TaskConfig struct {
	Name     string
	Priority Priority
	Realtime bool
	Affinity CPUSet
	Fn       func(*Task)
}

// Spawn creates a task and makes it runnable. The task's function runs on
// its own goroutine, driven by the scheduler; it begins executing when a
// CPU first dispatches it.
func (k *Kernel) Spawn(cfg TaskConfig) (*Task, error) {
	if cfg.Fn == nil {
		return nil, fmt.Errorf("spawn %q: no function", cfg.Name)
	}
	aff := cfg.Affinity
	aff.ClearAbove(uint(len(k.cpus)))
	if aff.Empty() {
		aff = AllCPUs(uint(len(k.cpus)))
	}

	t := &Task{
		id:       TID(k.nextTID.Add(1)),
		name:     cfg.Name,
		realtime: cfg.Realtime,
		k:        k,
		priority: NewPriorityTracker(cfg.Priority),
		fn:       cfg.Fn,
		permit:   make(chan struct{}, 1),
	}
	t.mu.Init(taskClass)
	t.affinity.Store(&aff)
	t.alive.Store(true)
	t.cpu.Store(-1)
	t.status.Store(int32(TaskRunnable))

	k.tasks.insert(t)
	k.taskWG.Add(1)
	go func() {
		defer k.taskWG.Done()
		t.run()
	}()

	// Joining fair tasks start at the destination queue's current
	// deadline so they compete immediately without starving residents.
	// The CPU is picked once so the baseline and the queue agree.
	c := k.placeCPU(t)
	if !t.realtime {
		t.virtualDeadline = c.rq.currentDeadline()
	}
	t.queued.Store(true)
	k.enqueueOn(t, c)
	log.Debugf("spawned task %d (%s) prio=%d rt=%v", t.id, t.name, cfg.Priority, cfg.Realtime)
	return t, nil
}

// enqueue makes t runnable on a CPU chosen by affinity and locality, kicking
// the CPU out of idle or requesting preemption as needed. Redundant calls
// while the task is already queued are no-ops.
func (k *Kernel) enqueue(t *Task) {
	if !t.queued.CompareAndSwap(false, true) {
		return
	}
	k.enqueueOn(t, k.placeCPU(t))
}

// enqueueOn inserts t into c's queue, kicking the CPU out of idle or
// requesting preemption as needed.
//
// Preconditions: the caller claimed t.queued; t is allowed on c.
func (k *Kernel) enqueueOn(t *Task, c *CPU) {
	c.rq.enqueue(t)
	if c.state.Load() == cpuIdle {
		c.kickIdle()
		return
	}
	if c.shouldPreempt() {
		k.RequestPreemption(c.id)
	}
}

// placeCPU picks the CPU for t: its last CPU if still allowed, otherwise
// the allowed CPU with the shortest queue.
func (k *Kernel) placeCPU(t *Task) *CPU {
	if last := t.cpu.Load(); last >= 0 && t.allowedOn(CPUID(last)) {
		return k.cpus[last]
	}
	var best *CPU
	bestLen := 0
	for _, c := range k.cpus {
		if !t.allowedOn(c.id) {
			continue
		}
		if n := c.rq.len(); best == nil || n < bestLen {
			best, bestLen = c, n
		}
	}
	if best == nil {
		panic(fmt.Sprintf("task %d has no eligible CPU", t.id))
	}
	return best
}

// RequestPreemption asks the given CPU to reschedule at its next preemption
// point.
func (k *Kernel) RequestPreemption(id CPUID) {
	c := k.cpu(id)
	c.preempt.setNeedResched()
	k.platform.Kick(id)
}

// steal finds fair work for an out-of-work CPU, scanning the other queues
// round-robin from the thief's neighbor. Returns nil when nothing movable
// exists.
func (k *Kernel) steal(thief *CPU) *Task {
	n := len(k.cpus)
	for off := 1; off < n; off++ {
		victim := k.cpus[(int(thief.id)+off)%n]
		if t := victim.rq.steal(thief.id); t != nil {
			log.Debugf("cpu%d: stole task %d from cpu%d", thief.id, t.ID(), victim.id)
			return t
		}
	}
	return nil
}

// reap removes an exited task and hands its CPU to the next task. Called
// from the exiting task's goroutine, which does not wait for a new permit.
func (k *Kernel) reap(t *Task) {
	k.tasks.remove(t.id)
	c := k.cpu(t.CPU())
	if next := c.scheduleNext(); next != nil {
		k.platform.SwitchToFirst(next)
	}
	log.Debugf("reaped task %d (%s) after %dns of CPU time", t.id, t.name, t.cpuTime)
}

// timeSlice returns the slice for a dispatch of t, in nanoseconds.
// Real-time tasks get the fixed real-time slice; fair slices shrink
// linearly from the maximum at the highest priority to the minimum at the
// lowest, clamped to the configured bounds for priorities beyond the fair
// range.
func (k *Kernel) timeSlice(t *Task) int64 {
	if t.realtime {
		return k.cfg.BaseTimeSliceNs
	}
	max, min := k.cfg.MaxTimeSliceNs, k.cfg.MinTimeSliceNs
	p := int64(t.priority.Effective())
	s := max - (max-min)*p/int64(PriorityLow)
	if s < min {
		return min
	}
	if s > max {
		return max
	}
	return s
}
