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

// Platform performs the mechanical part of a context switch: transferring
// the right to run between task goroutines. The scheduler decides who runs;
// the platform makes it so.
type Platform interface {
	// SwitchTo grants the CPU to next, which may be nil when the CPU
	// goes idle, and does not return until prev is granted the CPU
	// again. Called on prev's goroutine.
	SwitchTo(prev, next *Task)

	// SwitchToFirst grants the CPU to next without waiting. Used when
	// the granting goroutine is not a task: the idle loop, or a task
	// that is exiting.
	SwitchToFirst(next *Task)

	// Kick prods a CPU whose running task should notice a pending
	// reschedule. Advisory; cooperative platforms may ignore it.
	Kick(cpu CPUID)
}

// GoPlatform runs each task as a goroutine parked on its permit channel.
// The permit has capacity one, so a grant issued before the grantee parks
// is retained rather than lost.
type GoPlatform struct{}

// NewGoPlatform returns the goroutine-backed platform.
func NewGoPlatform() *GoPlatform { return &GoPlatform{} }

// SwitchTo implements Platform.SwitchTo.
func (*GoPlatform) SwitchTo(prev, next *Task) {
	if next != nil {
		next.permit <- struct{}{}
	}
	prev.waitPermit()
}

// SwitchToFirst implements Platform.SwitchToFirst.
func (*GoPlatform) SwitchToFirst(next *Task) {
	next.permit <- struct{}{}
}

// Kick implements Platform.Kick. Tasks notice reschedule requests at their
// next SchedulePoint, so there is nothing to do here.
func (*GoPlatform) Kick(CPUID) {}
