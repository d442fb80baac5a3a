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

// CPUID identifies a logical CPU.
type CPUID int32

// MaxCPUs is the largest supported number of logical CPUs.
const MaxCPUs = 128

const cpuSetWords = MaxCPUs / 64

// CPUSet is a fixed-size bitmask of logical CPUs. The zero value is the
// empty set.
type CPUSet struct {
	mask [cpuSetWords]uint64
}

// AllCPUs returns the set containing CPUs [0, n).
func AllCPUs(n uint) CPUSet {
	var s CPUSet
	for i := uint(0); i < n && i < MaxCPUs; i++ {
		s.Add(CPUID(i))
	}
	return s
}

// Contains returns whether id is in the set.
func (s *CPUSet) Contains(id CPUID) bool {
	i := uint(id)
	if i >= MaxCPUs {
		return false
	}
	return s.mask[i/64]&(1<<(i%64)) != 0
}

// Add inserts id into the set.
func (s *CPUSet) Add(id CPUID) {
	i := uint(id)
	if i < MaxCPUs {
		s.mask[i/64] |= 1 << (i % 64)
	}
}

// Remove deletes id from the set.
func (s *CPUSet) Remove(id CPUID) {
	i := uint(id)
	if i < MaxCPUs {
		s.mask[i/64] &^= 1 << (i % 64)
	}
}

// ClearAbove removes every CPU with id >= n.
func (s *CPUSet) ClearAbove(n uint) {
	for i := n; i < MaxCPUs; i++ {
		s.Remove(CPUID(i))
	}
}

// Empty returns whether the set contains no CPUs.
func (s *CPUSet) Empty() bool {
	for _, w := range s.mask {
		if w != 0 {
			return false
		}
	}
	return true
}

// NumCPUs returns the number of CPUs in the set.
func (s *CPUSet) NumCPUs() int {
	n := 0
	for i := CPUID(0); i < MaxCPUs; i++ {
		if s.Contains(i) {
			n++
		}
	}
	return n
}
