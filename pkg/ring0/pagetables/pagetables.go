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

// Package pagetables provides a generic implementation of pagetables.
//
// The tables are shaped like RISC-V Sv39: three levels of 512 eight-byte
// entries translate a 39-bit virtual address. Table nodes live in frames
// handed out by an Allocator, so a table can be rebuilt from nothing more
// than its token.
package pagetables

import (
	"errors"
	"fmt"

	"gvisor.dev/tkernel/pkg/hostarch"
)

var (
	// ErrAlreadyMapped is returned by MapPage and Map when a page already
	// has a valid entry.
	ErrAlreadyMapped = errors.New("page already mapped")

	// ErrNotMapped is returned by UnmapPage when a page has no valid entry.
	ErrNotMapped = errors.New("page not mapped")

	// ErrOutOfRange is returned for pages beyond the 39-bit address space.
	ErrOutOfRange = errors.New("page outside the translatable address space")

	// ErrBadToken is returned by FromToken for tokens not produced by Token.
	ErrBadToken = errors.New("not an Sv39 page table token")
)

// PageTables is a set of page tables.
type PageTables struct {
	// Allocator is used to allocate nodes.
	Allocator Allocator

	// root is the top level table.
	root *PTEs

	// rootPFN is the frame holding root.
	rootPFN hostarch.PageNumber

	// view is true for tables rebuilt by FromToken. A view does not own
	// its nodes and Release is a no-op for it.
	view bool
}

// New returns new PageTables with an empty root.
func New(a Allocator) (*PageTables, error) {
	root, err := a.NewPTEs()
	if err != nil {
		return nil, fmt.Errorf("allocating root page table: %w", err)
	}
	return &PageTables{
		Allocator: a,
		root:      root,
		rootPFN:   a.PhysicalFor(root),
	}, nil
}

// FromToken returns a temporary view of the tables identified by token. The
// view shares every node with the original and must not outlive it.
func FromToken(a Allocator, token uint64) (*PageTables, error) {
	if token>>tokenModeShift != tokenModeSv39 {
		return nil, fmt.Errorf("%w: %#x", ErrBadToken, token)
	}
	pfn := hostarch.PageNumber(token & tokenPPNMask)
	if pfn == 0 {
		return nil, fmt.Errorf("%w: %#x", ErrBadToken, token)
	}
	return &PageTables{
		Allocator: a,
		root:      a.LookupPTEs(pfn),
		rootPFN:   pfn,
		view:      true,
	}, nil
}

// Token returns the identifier of these tables: the Sv39 mode and the root
// frame, as would be written to satp.
func (p *PageTables) Token() uint64 {
	return tokenModeSv39<<tokenModeShift | uint64(p.rootPFN)
}

// RootPageNumber returns the frame of the top level table.
func (p *PageTables) RootPageNumber() hostarch.PageNumber {
	return p.rootPFN
}

// indexes splits vpn into its per-level table indexes, root first.
func indexes(vpn hostarch.PageNumber) [3]uint64 {
	return [3]uint64{
		uint64(vpn>>18) & 0x1ff,
		uint64(vpn>>9) & 0x1ff,
		uint64(vpn) & 0x1ff,
	}
}

// findPTE returns the leaf slot for vpn without allocating, or nil if an
// interior level is missing.
func (p *PageTables) findPTE(vpn hostarch.PageNumber) *PTE {
	if vpn >= maxVPN {
		return nil
	}
	entries := p.root
	idx := indexes(vpn)
	for level, i := range idx {
		entry := &entries[i]
		if level == len(idx)-1 {
			return entry
		}
		if !entry.Valid() || entry.IsLeaf() {
			return nil
		}
		entries = p.Allocator.LookupPTEs(entry.PageNumber())
	}
	return nil
}

// Translate returns a copy of the entry for vpn if it is valid.
func (p *PageTables) Translate(vpn hostarch.PageNumber) (PTE, bool) {
	pte := p.findPTE(vpn)
	if pte == nil || !pte.Valid() {
		return 0, false
	}
	return PTE(pte.load()), true
}

// Lookup returns the physical address and options for addr.
func (p *PageTables) Lookup(addr hostarch.Addr) (physical hostarch.Addr, opts MapOpts, ok bool) {
	pte, ok := p.Translate(addr.Floor())
	if !ok {
		return 0, MapOpts{}, false
	}
	return hostarch.Addr(pte.Address()) + hostarch.Addr(addr.PageOffset()), pte.Opts(), true
}

// mapVisitor is used for map.
type mapVisitor struct {
	target   uintptr // Input.
	physical uintptr // Input.
	opts     MapOpts // Input.
	prev     bool    // Output.
}

// visit is called for each leaf in the range.
func (v *mapVisitor) visit(start uintptr, pte *PTE, align uintptr) bool {
	if pte.Valid() {
		v.prev = true
		return false
	}
	pte.Set(v.physical+(start-v.target), v.opts)
	return true
}

func (*mapVisitor) requiresAlloc() bool { return true }

// MapPage installs an entry mapping vpn to pfn.
//
// It returns ErrAlreadyMapped if vpn already has a valid entry, leaving the
// existing entry untouched, and propagates allocation failures.
func (p *PageTables) MapPage(vpn, pfn hostarch.PageNumber, opts MapOpts) error {
	return p.Map(vpn.Addr(), hostarch.PageSize, opts, pfn.Addr())
}

// Map installs a mapping with the given physical address.
//
// The mapping stops at the first page that is already mapped, returning
// ErrAlreadyMapped; pages installed before that one stay installed.
//
// Precondition: addr, length and physical are page aligned and opts has some
// access.
func (p *PageTables) Map(addr hostarch.Addr, length uintptr, opts MapOpts, physical hostarch.Addr) error {
	if !opts.AccessType.Any() {
		return fmt.Errorf("mapping %v with no access", addr)
	}
	end, ok := addr.AddLength(uint64(length))
	if !ok || uintptr(end) > maxAddr {
		return fmt.Errorf("%w: [%v, +%#x)", ErrOutOfRange, addr, length)
	}
	v := &mapVisitor{
		target:   uintptr(addr),
		physical: uintptr(physical),
		opts:     opts,
	}
	w := Walker{pageTables: p, visitor: v}
	w.iterateRange(uintptr(addr), uintptr(end))
	if w.err != nil {
		return w.err
	}
	if v.prev {
		return fmt.Errorf("%w: %v", ErrAlreadyMapped, addr)
	}
	return nil
}

// unmapVisitor is used for unmap.
type unmapVisitor struct {
	count int
}

func (*unmapVisitor) requiresAlloc() bool { return false }

// visit unmaps the given entry.
func (v *unmapVisitor) visit(start uintptr, pte *PTE, align uintptr) bool {
	pte.Clear()
	v.count++
	return true
}

// UnmapPage removes the entry for vpn. It returns ErrNotMapped if vpn has
// no valid entry.
func (p *PageTables) UnmapPage(vpn hostarch.PageNumber) error {
	if vpn >= maxVPN {
		return fmt.Errorf("%w: %v", ErrOutOfRange, vpn)
	}
	if _, ok := p.Translate(vpn); !ok {
		return fmt.Errorf("%w: %v", ErrNotMapped, vpn)
	}
	p.Unmap(vpn.Addr(), hostarch.PageSize)
	return nil
}

// Unmap unmaps the given range and returns the number of entries cleared.
// Table nodes left empty are returned to the allocator.
//
// Precondition: addr and length are page aligned and the range is within
// the translatable address space.
func (p *PageTables) Unmap(addr hostarch.Addr, length uintptr) int {
	v := &unmapVisitor{}
	w := Walker{pageTables: p, visitor: v}
	w.iterateRange(uintptr(addr), uintptr(addr)+length)
	return v.count
}

// countVisitor is used for CountMapped.
type countVisitor struct {
	count uint64
}

func (*countVisitor) requiresAlloc() bool { return false }

func (v *countVisitor) visit(start uintptr, pte *PTE, align uintptr) bool {
	v.count++
	return true
}

// CountMapped returns the number of valid entries in [addr, addr+length).
// Missing interior levels are skipped whole, so sparse ranges are cheap.
//
// Precondition: addr and length are page aligned and the range is within
// the translatable address space.
func (p *PageTables) CountMapped(addr hostarch.Addr, length uintptr) uint64 {
	v := &countVisitor{}
	w := Walker{pageTables: p, visitor: v}
	w.iterateRange(uintptr(addr), uintptr(addr)+length)
	return v.count
}

// visitVisitor is used for Visit.
type visitVisitor struct {
	fn func(vpn hostarch.PageNumber, pte PTE) bool
}

func (*visitVisitor) requiresAlloc() bool { return false }

func (v *visitVisitor) visit(start uintptr, pte *PTE, align uintptr) bool {
	return v.fn(hostarch.PageNumber(start>>pteShift), PTE(pte.load()))
}

// Visit calls fn for every valid leaf in increasing page order until fn
// returns false.
func (p *PageTables) Visit(fn func(vpn hostarch.PageNumber, pte PTE) bool) {
	w := Walker{pageTables: p, visitor: &visitVisitor{fn: fn}}
	w.iterateRange(0, maxAddr)
}

// Release frees every table node, including the root. Leaf frames are not
// touched; they belong to whoever mapped them. Releasing a view does nothing.
func (p *PageTables) Release() {
	if p.view || p.root == nil {
		return
	}
	p.freeLevel(p.root, 2)
	p.Allocator.FreePTEs(p.root)
	p.root = nil
}

func (p *PageTables) freeLevel(entries *PTEs, level int) {
	if level == 0 {
		return
	}
	for i := range entries {
		entry := &entries[i]
		if !entry.Valid() || entry.IsLeaf() {
			continue
		}
		child := p.Allocator.LookupPTEs(entry.PageNumber())
		p.freeLevel(child, level-1)
		entry.Clear()
		p.Allocator.FreePTEs(child)
	}
}

// String implements fmt.Stringer.String.
func (p PTE) String() string {
	return fmt.Sprintf("%#x(%v)", p.Address(), p.Opts())
}
