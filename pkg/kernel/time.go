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
	"time"
)

// bootTime anchors the monotonic clock.
var bootTime = time.Now()

// monotonicNow returns nanoseconds of monotonic time since boot. It is a
// package variable so tests can substitute a fake clock.
var monotonicNow = func() int64 {
	return int64(time.Since(bootTime))
}

// satAddU64 adds two deadline increments, saturating instead of wrapping. A
// saturated deadline simply sorts last, which is the intended "very stale"
// behavior.
func satAddU64(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}
