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

// Package mm provides a memory management subsystem. See README.md for a
// detailed overview.
//
// Lock order:
//
//	MemoryManager.mu
//	  pgalloc.MemoryFile.mu
package mm

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/ring0/pagetables"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
)

// areaTreeDegree is the btree degree of the area set. Address spaces hold
// few areas, so a small degree keeps nodes compact.
const areaTreeDegree = 8

// MemoryManager implements a virtual address space.
type MemoryManager struct {
	// mf provides frames for framed areas and page table nodes. mf is
	// immutable.
	mf *pgalloc.MemoryFile

	// mu serializes changes to the address space. Translation views built
	// from the token read the tables without it.
	mu sync.Mutex

	// pt maps every page of every area.
	//
	// pt is protected by mu.
	pt *pagetables.PageTables

	// areas is the set of non-overlapping areas, ordered by start page.
	//
	// areas is protected by mu.
	areas *btree.BTreeG[*area]

	// released is set once Release has run.
	//
	// released is protected by mu.
	released bool
}

// NewMemoryManager returns a MemoryManager with an empty address space.
func NewMemoryManager(mf *pgalloc.MemoryFile) (*MemoryManager, error) {
	pt, err := pagetables.New(pagetables.NewFrameAllocator(mf))
	if err != nil {
		return nil, err
	}
	return &MemoryManager{
		mf:    mf,
		pt:    pt,
		areas: btree.NewG(areaTreeDegree, areaLess),
	}, nil
}

// MemoryFile returns the frame source of mm.
func (mm *MemoryManager) MemoryFile() *pgalloc.MemoryFile {
	return mm.mf
}

// Token returns the identifier of mm's page table.
func (mm *MemoryManager) Token() uint64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.pt.Token()
}

// Translate returns the page table entry for vpn, if any.
func (mm *MemoryManager) Translate(vpn hostarch.PageNumber) (pagetables.PTE, bool) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.pt.Translate(vpn)
}

// Release tears down the address space: every framed area returns its
// frames and the page table frees its nodes. Release is idempotent.
func (mm *MemoryManager) Release() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	if mm.released {
		return
	}
	mm.areas.Ascend(func(a *area) bool {
		a.freeFrames(mm.mf, 0, a.pages())
		return true
	})
	mm.areas.Clear(false)
	mm.pt.Release()
	mm.released = true
	log.Debugf("mm: released address space")
}

// checkLive panics if mm has been released.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) checkLive() {
	if mm.released {
		panic(fmt.Sprintf("use of released address space %p", mm))
	}
}
