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

package pagetables

import (
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
	"gvisor.dev/tkernel/pkg/sentry/usage"
)

// Allocator is used to allocate and map PTEs.
//
// Note that allocators may be called concurrently.
type Allocator interface {
	// NewPTEs returns a new set of zeroed PTEs and their physical frame.
	NewPTEs() (*PTEs, error)

	// PhysicalFor gives the physical frame for a set of PTEs.
	PhysicalFor(ptes *PTEs) hostarch.PageNumber

	// LookupPTEs looks up PTEs by physical frame.
	LookupPTEs(pfn hostarch.PageNumber) *PTEs

	// FreePTEs marks a set of PTEs as freed.
	FreePTEs(ptes *PTEs)
}

// FrameAllocator is an Allocator backed by frames of a MemoryFile. Table
// nodes are charged to usage.PageTables.
//
// A FrameAllocator keeps no state of its own, so any number of them may view
// the same MemoryFile.
type FrameAllocator struct {
	mf *pgalloc.MemoryFile
}

// NewFrameAllocator returns an allocator drawing from mf.
func NewFrameAllocator(mf *pgalloc.MemoryFile) *FrameAllocator {
	return &FrameAllocator{mf: mf}
}

// NewPTEs implements Allocator.NewPTEs.
func (a *FrameAllocator) NewPTEs() (*PTEs, error) {
	pfn, err := a.mf.Allocate(usage.PageTables)
	if err != nil {
		return nil, err
	}
	return ptesOf(a.mf.Frame(pfn)), nil
}

// PhysicalFor implements Allocator.PhysicalFor.
func (a *FrameAllocator) PhysicalFor(ptes *PTEs) hostarch.PageNumber {
	return physicalOf(a.mf, ptes).Floor()
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *FrameAllocator) LookupPTEs(pfn hostarch.PageNumber) *PTEs {
	return ptesOf(a.mf.Frame(pfn))
}

// FreePTEs implements Allocator.FreePTEs.
func (a *FrameAllocator) FreePTEs(ptes *PTEs) {
	a.mf.Free(a.PhysicalFor(ptes))
}
