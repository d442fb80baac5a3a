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

// Package locking implements level-ordered lock primitives with a correctness
// validator.
//
// Every lock belongs to a Class, and every class sits on one of six levels,
// L0 (lowest) through L5 (highest). A goroutine may only acquire a lock whose
// level is strictly higher than the level of every lock it already holds;
// acquiring two locks of the same class requires an explicit nesting subclass.
// If all goroutines obey this order, no deadlock can be built out of lock
// acquisition alone.
//
// The validator is compiled in only under the "lockdep" build tag, where
// violations panic with the offending acquisition chain. Production builds
// compile the checks down to nothing and rely on audited call-site
// discipline.
package locking

import (
	"sync"
)

// Level is a position in the lock ordering. Locks at a given level may only
// be acquired while holding locks at strictly lower levels.
type Level uint8

// The lock levels, lowest first. L0 is the "no locks held" baseline and is
// never assigned to a class.
const (
	L0 Level = iota
	L1
	L2
	L3
	L4
	L5
)

// maxHeldLocks bounds lock nesting depth per goroutine. Nesting depth in a
// kernel is small; blowing this bound is a bug in its own right.
const maxHeldLocks = 16

// A Class identifies a family of locks that share a position in the lock
// ordering, e.g. "every per-CPU run queue lock".
type Class struct {
	name  string
	level Level
}

// NewClass returns a new lock class at the given level.
func NewClass(name string, level Level) *Class {
	if level == L0 {
		panic("locking: lock class registered at L0")
	}
	return &Class{name: name, level: level}
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Level returns the class level.
func (c *Class) Level() Level { return c.level }

// Mutex is a sync.Mutex that participates in the lock ordering.
type Mutex struct {
	mu    sync.Mutex
	class *Class
}

// Init sets the lock class. Must be called before first use.
func (m *Mutex) Init(class *Class) {
	m.class = class
}

// Lock locks m.
func (m *Mutex) Lock() {
	AddGLock(m.class, -1)
	m.mu.Lock()
}

// NestedLock locks m knowing that another lock of the same class is held.
func (m *Mutex) NestedLock(subclass int) {
	AddGLock(m.class, subclass)
	m.mu.Lock()
}

// Unlock unlocks m.
func (m *Mutex) Unlock() {
	m.mu.Unlock()
	DelGLock(m.class, -1)
}

// NestedUnlock unlocks m knowing that another lock of the same class is held.
func (m *Mutex) NestedUnlock(subclass int) {
	m.mu.Unlock()
	DelGLock(m.class, subclass)
}

// RWMutex is a sync.RWMutex that participates in the lock ordering.
type RWMutex struct {
	mu    sync.RWMutex
	class *Class
}

// Init sets the lock class. Must be called before first use.
func (m *RWMutex) Init(class *Class) {
	m.class = class
}

// Lock locks m for writing.
func (m *RWMutex) Lock() {
	AddGLock(m.class, -1)
	m.mu.Lock()
}

// Unlock unlocks m for writing.
func (m *RWMutex) Unlock() {
	m.mu.Unlock()
	DelGLock(m.class, -1)
}

// RLock locks m for reading.
func (m *RWMutex) RLock() {
	AddGLock(m.class, -1)
	m.mu.RLock()
}

// RUnlock unlocks m for reading.
func (m *RWMutex) RUnlock() {
	m.mu.RUnlock()
	DelGLock(m.class, -1)
}
