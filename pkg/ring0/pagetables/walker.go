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

// Visitor is a generic type.
type Visitor interface {
	// visit is called on each PTE. The returned boolean indicates whether
	// the walk should continue.
	visit(start uintptr, pte *PTE, align uintptr) bool

	// requiresAlloc indicates that new entries should be allocated within
	// the walked range.
	requiresAlloc() bool
}

// Walker walks page tables.
type Walker struct {
	// pageTables are the tables to walk.
	pageTables *PageTables

	// visitor is the set of arguments.
	visitor Visitor

	// err is the allocation failure that stopped the walk, if any.
	err error
}

// addrEnd returns the next boundary after addr for the given size, or end if
// that comes earlier. size is a power of two.
func addrEnd(addr, end, size uintptr) uintptr {
	next := (addr + size) &^ (size - 1)
	if next < addr || next > end {
		return end
	}
	return next
}

// iterateRange iterates over all appropriate levels of page tables for the
// given range.
//
// Precondition: start and end are page aligned and end <= maxAddr.
func (w *Walker) iterateRange(start, end uintptr) bool {
	if start%pteSize != 0 {
		panic("unaligned start")
	}
	if end < start {
		panic("start > end")
	}
	if end > maxAddr {
		panic("range beyond the translatable address space")
	}
	return w.walkPUDs(w.pageTables.root, start, end)
}

// walkPTEs iterates over the leaf entries in the given range.
func (w *Walker) walkPTEs(entries *PTEs, start, end uintptr) bool {
	for start < end {
		pteIndex := (start & pteMask) >> pteShift
		entry := &entries[pteIndex]
		if !entry.Valid() && !w.visitor.requiresAlloc() {
			start += pteSize
			continue
		}

		// At this point, we are guaranteed that start%pteSize == 0.
		if !w.visitor.visit(start, entry, pteSize-1) {
			return false
		}
		start += pteSize
	}
	return true
}

// next returns the table below entry, allocating it if the visitor asks for
// allocation. It returns nil if there is nothing to descend into.
func (w *Walker) next(entry *PTE) *PTEs {
	if entry.Valid() {
		if entry.IsLeaf() {
			// Only level-0 leaves are ever installed.
			panic("superpage leaf in an interior level")
		}
		return w.pageTables.Allocator.LookupPTEs(entry.PageNumber())
	}
	if !w.visitor.requiresAlloc() {
		return nil
	}
	entries, err := w.pageTables.Allocator.NewPTEs()
	if err != nil {
		w.err = err
		return nil
	}
	entry.setPageTable(w.pageTables, entries)
	return entries
}

// release frees the table below entry if it holds no valid entries. Both
// partial unmaps and failed allocations can leave such a table behind.
func (w *Walker) release(entry *PTE, entries *PTEs) {
	if entries.empty() {
		entry.Clear()
		w.pageTables.Allocator.FreePTEs(entries)
	}
}

// walkPMDs iterates over the middle level entries in the given range.
func (w *Walker) walkPMDs(pmdEntries *PTEs, start, end uintptr) bool {
	for start < end {
		nextBoundary := addrEnd(start, end, pmdSize)
		pmdEntry := &pmdEntries[(start&pmdMask)>>pmdShift]
		pteEntries := w.next(pmdEntry)
		if pteEntries == nil {
			if w.err != nil {
				return false
			}
			start = nextBoundary
			continue
		}

		ok := w.walkPTEs(pteEntries, start, nextBoundary)
		w.release(pmdEntry, pteEntries)
		if !ok {
			return false
		}
		start = nextBoundary
	}
	return true
}

// walkPUDs iterates over the root level entries in the given range.
func (w *Walker) walkPUDs(pudEntries *PTEs, start, end uintptr) bool {
	for start < end {
		nextBoundary := addrEnd(start, end, pudSize)
		pudEntry := &pudEntries[(start&pudMask)>>pudShift]
		pmdEntries := w.next(pudEntry)
		if pmdEntries == nil {
			if w.err != nil {
				return false
			}
			start = nextBoundary
			continue
		}

		ok := w.walkPMDs(pmdEntries, start, nextBoundary)
		w.release(pudEntry, pmdEntries)
		if !ok {
			return false
		}
		start = nextBoundary
	}
	return true
}
