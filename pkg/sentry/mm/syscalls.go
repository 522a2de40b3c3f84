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

package mm

import (
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/ring0/pagetables"
)

// userRange validates a syscall range and returns its pages. start must be
// page aligned and start+length must stay within the user address space.
func userRange(start hostarch.Addr, length uint64) (hostarch.PageNumber, hostarch.PageNumber, error) {
	if !start.IsPageAligned() {
		return 0, 0, linuxerr.EINVAL
	}
	end, ok := start.AddLength(length)
	if !ok {
		return 0, 0, linuxerr.EINVAL
	}
	return pageRange(start, end)
}

// MMap establishes a framed, user-accessible mapping of
// [start, start+length) with access at.
//
// Every page in the range must currently be unmapped; otherwise MMap returns
// EEXIST and changes nothing. A zero length is accepted and maps nothing.
func (mm *MemoryManager) MMap(start hostarch.Addr, length uint64, at hostarch.AccessType) error {
	first, last, err := userRange(start, length)
	if err != nil {
		return err
	}
	if !at.Any() {
		return linuxerr.EINVAL
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	if mm.mappedLocked(first, last) != 0 {
		return linuxerr.EEXIST
	}
	return mm.insertAreaLocked(first, last, pagetables.MapOpts{AccessType: at, User: true}, Framed)
}

// MUnmap removes the mappings of [start, start+length).
//
// Every page in the range must currently be mapped; otherwise MUnmap returns
// EINVAL and changes nothing. A zero length is accepted and unmaps nothing.
func (mm *MemoryManager) MUnmap(start hostarch.Addr, length uint64) error {
	first, last, err := userRange(start, length)
	if err != nil {
		return err
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	if mm.mappedLocked(first, last) != uint64(last-first) {
		return linuxerr.EINVAL
	}
	if first < last {
		mm.removeRangeLocked(first, last)
	}
	return nil
}

// mappedLocked returns the number of pages in [first, last) that have a valid
// page table entry.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) mappedLocked(first, last hostarch.PageNumber) uint64 {
	return mm.pt.CountMapped(first.Addr(), uintptr(last-first)*hostarch.PageSize)
}
