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
	"ordos.dev/ordos/pkg/sync/locking"
)

// Kernel-internal lock classes. These sit above the public L1..L5 range so
// that a task holding leveled kernel locks can always block: the
// infrastructure locks taken inside wait and dispatch paths are ordered
// after every lock a caller may legitimately hold.
//
// Acquisition order, lowest first:
//
//	timeouts < taskSet < waitQueue < waitCond < task < runQueue
var (
	timeoutsClass  = locking.NewClass("kernel.timeouts", locking.L5+1)
	taskSetClass   = locking.NewClass("kernel.taskSet", locking.L5+2)
	waitQueueClass = locking.NewClass("kernel.waitQueue", locking.L5+3)
	waitCondClass  = locking.NewClass("kernel.waitCond", locking.L5+4)
	taskClass      = locking.NewClass("kernel.task", locking.L5+5)
	runQueueClass  = locking.NewClass("kernel.runQueue", locking.L5+6)
)
