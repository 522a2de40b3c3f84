// Copyright 2025 The gVisor Authors.
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

// Package usage provides representations of resource usage.
package usage

import (
	"fmt"
	"sync"
)

// MemoryKind represents a type of memory used by the kernel.
type MemoryKind int

const (
	// System represents frames reserved by the frame allocator itself.
	System MemoryKind = iota

	// PageTables represents frames holding page table nodes.
	PageTables

	// Anonymous represents frames backing framed mapping areas.
	Anonymous
)

// String implements fmt.Stringer.String.
func (k MemoryKind) String() string {
	switch k {
	case System:
		return "system"
	case PageTables:
		return "pagetables"
	case Anonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("MemoryKind(%d)", int(k))
	}
}

// Kinds returns every MemoryKind in order.
func Kinds() []MemoryKind {
	return []MemoryKind{System, PageTables, Anonymous}
}

// MemoryStats tracks memory usage in bytes. All fields correspond to the
// memory category with the same name.
type MemoryStats struct {
	System     uint64
	PageTables uint64
	Anonymous  uint64
}

func (s *MemoryStats) field(kind MemoryKind) *uint64 {
	switch kind {
	case System:
		return &s.System
	case PageTables:
		return &s.PageTables
	case Anonymous:
		return &s.Anonymous
	}
	panic(fmt.Sprintf("invalid memory kind: %v", kind))
}

// Get returns the usage of one kind.
func (s *MemoryStats) Get(kind MemoryKind) uint64 {
	return *s.field(kind)
}

// MemoryLocked is MemoryStats with access methods.
type MemoryLocked struct {
	mu sync.RWMutex

	// MemoryStats records the memory stats.
	MemoryStats
}

// Inc adds an additional usage of val bytes to memory category kind.
func (m *MemoryLocked) Inc(val uint64, kind MemoryKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.field(kind) += val
}

// Dec removes a usage of val bytes from memory category kind.
func (m *MemoryLocked) Dec(val uint64, kind MemoryKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.field(kind)
	if *f < val {
		panic(fmt.Sprintf("%v usage underflow: %d < %d", kind, *f, val))
	}
	*f -= val
}

// Copy returns a copy of the structure with a total.
func (m *MemoryLocked) Copy() (MemoryStats, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms := m.MemoryStats
	return ms, ms.System + ms.PageTables + ms.Anonymous
}

// Total returns the total usage in bytes.
func (m *MemoryLocked) Total() uint64 {
	_, total := m.Copy()
	return total
}

// Get returns the usage of one kind.
func (m *MemoryLocked) Get(kind MemoryKind) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.MemoryStats.Get(kind)
}
