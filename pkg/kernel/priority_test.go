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

// fakeClock pins monotonicNow to a settable instant for the duration of a
// test.
type fakeClock struct {
	now int64
}

func installFakeClock(t *testing.T) *fakeClock {
	t.Helper()
	fc := &fakeClock{now: 1}
	orig := monotonicNow
	monotonicNow = func() int64 { return fc.now }
	t.Cleanup(func() { monotonicNow = orig })
	return fc
}

func (fc *fakeClock) advance(d time.Duration) {
	fc.now += int64(d)
}

func TestEffectiveTracksBase(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() = %d, want %d", got, PriorityNormal)
	}
	p.SetBase(PriorityLow)
	if got := p.Effective(); got != PriorityLow {
		t.Errorf("Effective() after SetBase = %d, want %d", got, PriorityLow)
	}
}

func TestInheritRestoreRoundTrip(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	p.Inherit(1, 50)
	if got := p.Effective(); got != 50 {
		t.Errorf("Effective() after Inherit = %d, want 50", got)
	}
	p.Restore(1)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() after Restore = %d, want %d", got, PriorityNormal)
	}
}

func TestInheritNeverLowers(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	p.Inherit(1, 120)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() with low donation = %d, want %d", got, PriorityNormal)
	}
}

func TestMultipleDonors(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	p.Inherit(1, 80)
	p.Inherit(2, 40)
	if got := p.Effective(); got != 40 {
		t.Errorf("Effective() with two donors = %d, want 40", got)
	}
	// Dropping the stronger donor falls back to the weaker one, not to
	// the base.
	p.Restore(2)
	if got := p.Effective(); got != 80 {
		t.Errorf("Effective() after dropping strongest = %d, want 80", got)
	}
	p.Restore(1)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() after dropping all = %d, want %d", got, PriorityNormal)
	}
}

func TestInheritReplacesPerKey(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	p.Inherit(7, 60)
	p.Inherit(7, 30)
	if got := p.Effective(); got != 30 {
		t.Errorf("Effective() after replacement = %d, want 30", got)
	}
	p.Restore(7)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() after single Restore = %d, want %d", got, PriorityNormal)
	}
}

func TestRestoreUnknownKeyIsNoop(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	p.Restore(99)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() = %d, want %d", got, PriorityNormal)
	}
}

func TestBoostExpiry(t *testing.T) {
	fc := installFakeClock(t)
	p := NewPriorityTracker(PriorityNormal)
	p.BoostForIPC(10 * time.Microsecond)
	if got := p.Effective(); got != PriorityHigh {
		t.Errorf("Effective() during boost = %d, want %d", got, PriorityHigh)
	}
	fc.advance(11 * time.Microsecond)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() after expiry = %d, want %d", got, PriorityNormal)
	}
	// Expiry is one way: the lapsed boost stays lapsed.
	fc.advance(-5 * time.Microsecond)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() after clearing = %d, want %d", got, PriorityNormal)
	}
}

func TestBoostDoesNotLowerStrongerDonation(t *testing.T) {
	installFakeClock(t)
	p := NewPriorityTracker(PriorityNormal)
	p.Inherit(1, 10)
	p.BoostForIPC(10 * time.Microsecond)
	if got := p.Effective(); got != 10 {
		t.Errorf("Effective() = %d, want donation 10 to win over boost", got)
	}
}

func TestIPCCriticalPinsBoost(t *testing.T) {
	fc := installFakeClock(t)
	p := NewPriorityTracker(PriorityNormal)
	p.EnterIPCCritical()
	if !p.InIPCCritical() {
		t.Fatal("InIPCCritical() = false after enter")
	}
	// Well past the boost window, but still inside the critical section.
	fc.advance(time.Millisecond)
	if got := p.Effective(); got != PriorityHigh {
		t.Errorf("Effective() in critical section = %d, want %d", got, PriorityHigh)
	}
	p.ExitIPCCritical()
	fc.advance(time.Millisecond)
	if got := p.Effective(); got != PriorityNormal {
		t.Errorf("Effective() after exit = %d, want %d", got, PriorityNormal)
	}
}

func TestNestedIPCCritical(t *testing.T) {
	fc := installFakeClock(t)
	p := NewPriorityTracker(PriorityNormal)
	p.EnterIPCCritical()
	p.EnterIPCCritical()
	p.ExitIPCCritical()
	fc.advance(time.Millisecond)
	if got := p.Effective(); got != PriorityHigh {
		t.Errorf("Effective() with one critical section still open = %d, want %d", got, PriorityHigh)
	}
	p.ExitIPCCritical()
}

func TestExitIPCCriticalUnderflowPanics(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	defer func() {
		if recover() == nil {
			t.Error("ExitIPCCritical without enter did not panic")
		}
	}()
	p.ExitIPCCritical()
}

func TestDonationOverflowPanics(t *testing.T) {
	p := NewPriorityTracker(PriorityNormal)
	for i := 0; i < maxDonations; i++ {
		p.Inherit(uint64(i), 50)
	}
	defer func() {
		if recover() == nil {
			t.Error("donation overflow did not panic")
		}
	}()
	p.Inherit(uint64(maxDonations), 50)
}
