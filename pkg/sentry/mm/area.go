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
	"fmt"

	"gvisor.dev/tkernel/pkg/cleanup"
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/ring0/pagetables"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
	"gvisor.dev/tkernel/pkg/sentry/usage"
)

// AreaKind is the mapping discipline of an area.
type AreaKind int

const (
	// Framed areas own one allocated frame per page.
	Framed AreaKind = iota

	// Identity areas map each page to the frame of the same number.
	Identity
)

// String implements fmt.Stringer.String.
func (k AreaKind) String() string {
	switch k {
	case Framed:
		return "framed"
	case Identity:
		return "identity"
	default:
		return fmt.Sprintf("AreaKind(%d)", int(k))
	}
}

// area is a range of pages with uniform permissions.
type area struct {
	// start and end bound the pages [start, end).
	start hostarch.PageNumber
	end   hostarch.PageNumber

	opts pagetables.MapOpts
	kind AreaKind

	// frames[i] backs page start+i. It is nil for identity areas.
	frames []hostarch.PageNumber
}

func areaLess(a, b *area) bool {
	return a.start < b.start
}

func (a *area) pages() uint64 {
	return uint64(a.end - a.start)
}

// frameFor returns the frame backing vpn.
func (a *area) frameFor(vpn hostarch.PageNumber) hostarch.PageNumber {
	if a.kind == Identity {
		return vpn
	}
	return a.frames[vpn-a.start]
}

// freeFrames returns the frames backing pages [start+from, start+to) to mf.
func (a *area) freeFrames(mf *pgalloc.MemoryFile, from, to uint64) {
	if a.kind != Framed {
		return
	}
	for _, pfn := range a.frames[from:to] {
		mf.Free(pfn)
	}
}

// AreaInfo describes one area of an address space.
type AreaInfo struct {
	Start hostarch.PageNumber
	End   hostarch.PageNumber
	Opts  pagetables.MapOpts
	Kind  AreaKind
}

// Range returns the virtual addresses covered by the area.
func (ai AreaInfo) Range() hostarch.AddrRange {
	return hostarch.AddrRange{Start: ai.Start.Addr(), End: ai.End.Addr()}
}

// String implements fmt.Stringer.String.
func (ai AreaInfo) String() string {
	u := "-"
	if ai.Opts.User {
		u = "u"
	}
	return fmt.Sprintf("%v %v%s %v", ai.Range(), ai.Opts.AccessType, u, ai.Kind)
}

func (a *area) info() AreaInfo {
	return AreaInfo{Start: a.start, End: a.end, Opts: a.opts, Kind: a.kind}
}

// Areas returns the areas of mm in address order.
func (mm *MemoryManager) Areas() []AreaInfo {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var infos []AreaInfo
	mm.areas.Ascend(func(a *area) bool {
		infos = append(infos, a.info())
		return true
	})
	return infos
}

// MappedPages returns the number of pages covered by areas.
func (mm *MemoryManager) MappedPages() uint64 {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	var n uint64
	mm.areas.Ascend(func(a *area) bool {
		n += a.pages()
		return true
	})
	return n
}

// findAreaLocked returns the area containing vpn.
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) findAreaLocked(vpn hostarch.PageNumber) (*area, bool) {
	var found *area
	mm.areas.DescendLessOrEqual(&area{start: vpn}, func(a *area) bool {
		found = a
		return false
	})
	if found == nil || vpn >= found.end {
		return nil, false
	}
	return found, true
}

// overlapsLocked returns true if any area intersects [start, end).
//
// Preconditions: mm.mu must be locked. start < end.
func (mm *MemoryManager) overlapsLocked(start, end hostarch.PageNumber) bool {
	overlap := false
	mm.areas.DescendLessOrEqual(&area{start: end - 1}, func(a *area) bool {
		overlap = a.end > start
		return false
	})
	return overlap
}

// pageRange converts [start, end) to pages, rejecting ranges beyond the user
// address space.
func pageRange(start, end hostarch.Addr) (hostarch.PageNumber, hostarch.PageNumber, error) {
	if end < start || end > hostarch.MaxUserAddress {
		return 0, 0, linuxerr.EINVAL
	}
	return start.Floor(), end.Ceil(), nil
}

// InsertFramedArea maps [floor(start), ceil(end)) to newly allocated frames
// with the given options and records the area.
//
// The range must not overlap an existing area. If allocation fails part way,
// everything done so far is undone and ENOMEM is returned.
func (mm *MemoryManager) InsertFramedArea(start, end hostarch.Addr, opts pagetables.MapOpts) error {
	first, last, err := pageRange(start, end)
	if err != nil {
		return err
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.insertAreaLocked(first, last, opts, Framed)
}

// InsertIdentityArea maps each page of [floor(start), ceil(end)) to the
// frame of the same number and records the area.
//
// Every page must fall in the memory file's identity window; any other frame
// may belong to a page table or another area, and EINVAL is returned.
func (mm *MemoryManager) InsertIdentityArea(start, end hostarch.Addr, opts pagetables.MapOpts) error {
	first, last, err := pageRange(start, end)
	if err != nil {
		return err
	}
	for vpn := first; vpn < last; vpn++ {
		if !mm.mf.IsReserved(vpn) {
			log.Debugf("mm: identity page %v outside the reserved window [0x1, %#x]", vpn, mm.mf.Reserved())
			return linuxerr.EINVAL
		}
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	return mm.insertAreaLocked(first, last, opts, Identity)
}

// insertAreaLocked builds and records an area over [start, end).
//
// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) insertAreaLocked(start, end hostarch.PageNumber, opts pagetables.MapOpts, kind AreaKind) error {
	mm.checkLive()
	if start >= end {
		return nil
	}
	if !opts.AccessType.Any() {
		return linuxerr.EINVAL
	}
	if mm.overlapsLocked(start, end) {
		return linuxerr.EEXIST
	}

	a := &area{start: start, end: end, opts: opts, kind: kind}
	// mapped counts the leading pages whose entries are installed.
	var mapped uintptr
	cu := cleanup.Make(func() {
		mm.pt.Unmap(start.Addr(), mapped*hostarch.PageSize)
		a.freeFrames(mm.mf, 0, uint64(len(a.frames)))
	})
	defer cu.Clean()

	for vpn := start; vpn < end; vpn++ {
		pfn := vpn
		if kind == Framed {
			var err error
			pfn, err = mm.mf.Allocate(usage.Anonymous)
			if err != nil {
				log.Debugf("mm: out of frames mapping %v at page %v", hostarch.AddrRange{Start: start.Addr(), End: end.Addr()}, vpn)
				return err
			}
			a.frames = append(a.frames, pfn)
		}
		if err := mm.pt.MapPage(vpn, pfn, opts); err != nil {
			return fmt.Errorf("mapping page %v: %w", vpn, err)
		}
		mapped++
	}
	cu.Release()

	mm.areas.ReplaceOrInsert(a)
	log.Debugf("mm: inserted %v", a.info())
	return nil
}

// RemoveAreaCovering removes the area that starts at floor(addr): its page
// table entries are cleared and, for framed areas, its frames are freed. It
// returns ENOENT if no area starts there.
func (mm *MemoryManager) RemoveAreaCovering(addr hostarch.Addr) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	a, ok := mm.areas.Get(&area{start: addr.Floor()})
	if !ok {
		return linuxerr.ENOENT
	}
	mm.removeAreaLocked(a)
	return nil
}

// removeAreaLocked drops a and all of its pages.
//
// Preconditions: mm.mu must be locked. a is in mm.areas.
func (mm *MemoryManager) removeAreaLocked(a *area) {
	mm.pt.Unmap(a.start.Addr(), uintptr(a.pages())*hostarch.PageSize)
	a.freeFrames(mm.mf, 0, a.pages())
	mm.areas.Delete(a)
	log.Debugf("mm: removed %v", a.info())
}

// removeRangeLocked removes pages [start, end) from every area they belong
// to, splitting areas that extend past either end.
//
// Preconditions: mm.mu must be locked. start < end.
func (mm *MemoryManager) removeRangeLocked(start, end hostarch.PageNumber) {
	var affected []*area
	mm.areas.DescendLessOrEqual(&area{start: end - 1}, func(a *area) bool {
		if a.end <= start {
			return false
		}
		affected = append(affected, a)
		return true
	})

	for _, a := range affected {
		cutStart := max(a.start, start)
		cutEnd := min(a.end, end)
		if cutStart == a.start && cutEnd == a.end {
			mm.removeAreaLocked(a)
			continue
		}

		mm.pt.Unmap(cutStart.Addr(), uintptr(cutEnd-cutStart)*hostarch.PageSize)
		a.freeFrames(mm.mf, uint64(cutStart-a.start), uint64(cutEnd-a.start))
		mm.areas.Delete(a)

		if a.start < cutStart {
			left := &area{start: a.start, end: cutStart, opts: a.opts, kind: a.kind}
			if a.kind == Framed {
				left.frames = append([]hostarch.PageNumber(nil), a.frames[:cutStart-a.start]...)
			}
			mm.areas.ReplaceOrInsert(left)
		}
		if cutEnd < a.end {
			right := &area{start: cutEnd, end: a.end, opts: a.opts, kind: a.kind}
			if a.kind == Framed {
				right.frames = append([]hostarch.PageNumber(nil), a.frames[cutEnd-a.start:]...)
			}
			mm.areas.ReplaceOrInsert(right)
		}
		log.Debugf("mm: cut [%v, %v) out of %v", cutStart, cutEnd, a.info())
	}
}
