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
	"sync"
	"sync/atomic"
	"time"
)

// Priority is a scheduling priority. Lower numeric value means higher
// priority, following the Unix convention.
type Priority uint8

// Priority tiers.
const (
	// PriorityRealtime marks real-time critical work (IPC servers,
	// interrupt handlers).
	PriorityRealtime Priority = 0

	// PriorityHigh is the tier granted by short-lived IPC completion
	// boosts.
	PriorityHigh Priority = 64

	// PriorityNormal is the default.
	PriorityNormal Priority = 100

	// PriorityLow is for background tasks, and is the lowest (numerically
	// highest) valid priority.
	PriorityLow Priority = 139
)

// maxDonations bounds the donation list. Lock nesting depth in the kernel is
// small, so a task can be boosted by at most a handful of resources at once.
const maxDonations = 16

// defaultIPCBoost is the boost window granted on entering an IPC critical
// section, roughly the cost of a short message round-trip.
const defaultIPCBoost = 10 * time.Microsecond

// donation is one inherited priority, tagged with the identity of the
// resource that donated it.
type donation struct {
	key  uint64
	prio Priority
}

// PriorityTracker tracks a task's base priority, priorities inherited from
// contended resources, and time-bounded IPC boosts. It is owned by exactly
// one Task, but is read and donated to from other tasks' goroutines, so all
// fields are protected by atomics or the internal leaf mutex.
type PriorityTracker struct {
	// base is the task's own priority, changed only by explicit policy.
	base atomic.Uint32

	// effective caches min(base, donations). Boosts are folded in lazily
	// by Effective, never stored here.
	effective atomic.Uint32

	// boostDeadline is the monotonic time at which the current boost
	// lapses, or 0 if no boost is active. Expiry is detected lazily on
	// the next Effective call; no timer is armed.
	boostDeadline atomic.Int64

	// ipcCritical counts nested IPC critical sections. While nonzero, an
	// active boost does not expire.
	ipcCritical atomic.Int32

	// mu guards donations. This is a leaf lock: nothing is acquired
	// under it.
	mu        sync.Mutex
	donations []donation
}

// NewPriorityTracker returns a tracker with the given base priority.
func NewPriorityTracker(base Priority) *PriorityTracker {
	p := &PriorityTracker{
		donations: make([]donation, 0, maxDonations),
	}
	p.base.Store(uint32(base))
	p.effective.Store(uint32(base))
	return p
}

// Base returns the base priority.
func (p *PriorityTracker) Base() Priority {
	return Priority(p.base.Load())
}

// SetBase changes the base priority and recomputes the effective priority.
func (p *PriorityTracker) SetBase(prio Priority) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base.Store(uint32(prio))
	p.recompute()
}

// Effective returns the current effective priority: the minimum of the base
// priority, all inherited donations, and the High tier while a boost is
// unexpired. O(1).
func (p *PriorityTracker) Effective() Priority {
	eff := Priority(p.effective.Load())
	d := p.boostDeadline.Load()
	if d == 0 {
		return eff
	}
	if monotonicNow() <= d || p.ipcCritical.Load() > 0 {
		if PriorityHigh < eff {
			eff = PriorityHigh
		}
		return eff
	}
	// Boost lapsed; revert silently. Losing the race just means another
	// caller already cleared it.
	p.boostDeadline.CompareAndSwap(d, 0)
	return eff
}

// Inherit records a priority donation tagged by key, the identity of the
// donating resource, replacing any previous donation with the same key.
// Idempotent per key.
func (p *PriorityTracker) Inherit(key uint64, prio Priority) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.donations {
		if p.donations[i].key == key {
			p.donations[i].prio = prio
			p.recompute()
			return
		}
	}
	if len(p.donations) >= maxDonations {
		panic("kernel: priority donation list overflow")
	}
	p.donations = append(p.donations, donation{key: key, prio: prio})
	p.recompute()
}

// Restore removes the donation tagged by key. Must be paired with a
// successful Inherit for the same key. Removing a key with no donation is a
// no-op, since a resource may release without ever having been contended.
func (p *PriorityTracker) Restore(key uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.donations {
		if p.donations[i].key == key {
			p.donations = append(p.donations[:i], p.donations[i+1:]...)
			break
		}
	}
	p.recompute()
}

// recompute refreshes the cached effective priority.
//
// Preconditions: p.mu is locked.
func (p *PriorityTracker) recompute() {
	eff := Priority(p.base.Load())
	for _, d := range p.donations {
		if d.prio < eff {
			eff = d.prio
		}
	}
	p.effective.Store(uint32(eff))
}

// BoostForIPC raises the effective priority to the High tier for the given
// duration, measured on the monotonic clock. Used to shorten IPC completion
// latency. The boost expires lazily and reverts silently.
func (p *PriorityTracker) BoostForIPC(d time.Duration) {
	p.boostDeadline.Store(monotonicNow() + int64(d))
}

// EnterIPCCritical marks the start of a critical IPC operation. Only the
// first of a nest of enters triggers a boost.
func (p *PriorityTracker) EnterIPCCritical() {
	if p.ipcCritical.Add(1) == 1 {
		p.BoostForIPC(defaultIPCBoost)
	}
}

// ExitIPCCritical marks the end of a critical IPC operation. The boost is
// not removed eagerly; it lapses on its deadline once the critical count
// reaches zero.
func (p *PriorityTracker) ExitIPCCritical() {
	if p.ipcCritical.Add(-1) < 0 {
		panic("kernel: ExitIPCCritical without matching enter")
	}
}

// InIPCCritical returns whether any IPC critical section is open.
func (p *PriorityTracker) InIPCCritical() bool {
	return p.ipcCritical.Load() > 0
}
