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

//go:build lockdep
// +build lockdep

package locking

import (
	"bytes"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

type heldLock struct {
	class    *Class
	subclass int
}

var (
	heldMu sync.Mutex
	// held maps a goroutine id to its stack of currently held locks. Only
	// populated in lockdep builds, so the goid parse and global map are
	// acceptable costs.
	held = map[uint64][]heldLock{}
)

// goid extracts the current goroutine's id from the runtime stack header,
// which looks like "goroutine 18 [running]:".
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		panic("locking: cannot parse runtime.Stack output")
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		panic("locking: cannot parse goroutine id: " + err.Error())
	}
	return id
}

func formatHeld(locks []heldLock) string {
	var b bytes.Buffer
	for i, h := range locks {
		if i > 0 {
			b.WriteString(" -> ")
		}
		fmt.Fprintf(&b, "%s(L%d", h.class.name, h.class.level)
		if h.subclass >= 0 {
			fmt.Fprintf(&b, ",#%d", h.subclass)
		}
		b.WriteString(")")
	}
	return b.String()
}

// AddGLock records that the calling goroutine acquired a lock of the given
// class. subclass is -1 for a plain acquisition, or a non-negative nesting
// index when a lock of the same class is already held.
func AddGLock(class *Class, subclass int) {
	if class == nil {
		panic("locking: lock used before Init")
	}
	id := goid()
	heldMu.Lock()
	defer heldMu.Unlock()

	locks := held[id]
	if len(locks) >= maxHeldLocks {
		panic(fmt.Sprintf("locking: goroutine %d holds too many locks: %s", id, formatHeld(locks)))
	}
	for _, h := range locks {
		if h.class.level > class.level {
			panic(fmt.Sprintf("locking: acquiring %s(L%d) while holding higher-level %s(L%d); held: %s",
				class.name, class.level, h.class.name, h.class.level, formatHeld(locks)))
		}
		if h.class.level == class.level {
			if h.class != class || subclass < 0 || subclass <= h.subclass {
				panic(fmt.Sprintf("locking: acquiring %s(L%d) while holding same-level %s(L%d); held: %s",
					class.name, class.level, h.class.name, h.class.level, formatHeld(locks)))
			}
		}
	}
	held[id] = append(locks, heldLock{class: class, subclass: subclass})
}

// DelGLock records that the calling goroutine released a lock of the given
// class.
func DelGLock(class *Class, subclass int) {
	if class == nil {
		panic("locking: lock used before Init")
	}
	id := goid()
	heldMu.Lock()
	defer heldMu.Unlock()

	locks := held[id]
	for i := len(locks) - 1; i >= 0; i-- {
		if locks[i].class == class && locks[i].subclass == subclass {
			held[id] = append(locks[:i], locks[i+1:]...)
			if len(held[id]) == 0 {
				delete(held, id)
			}
			return
		}
	}
	panic(fmt.Sprintf("locking: releasing %s that goroutine %d does not hold; held: %s",
		class.name, id, formatHeld(locks)))
}
