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
	"sync/atomic"

	"gvisor.dev/tkernel/pkg/hostarch"
)

// Sv39 layout: three levels of 512 entries translating a 39-bit address.
const (
	pteShift = 12
	pmdShift = 21
	pudShift = 30

	pteSize = 1 << pteShift
	pmdSize = 1 << pmdShift
	pudSize = 1 << pudShift

	pteMask = 0x1ff << pteShift
	pmdMask = 0x1ff << pmdShift
	pudMask = 0x1ff << pudShift

	entriesPerPage = 512

	// maxAddr is one past the highest translatable address.
	maxAddr = uintptr(hostarch.MaxUserAddress)

	// maxVPN is one past the highest translatable page number.
	maxVPN = hostarch.PageNumber(maxAddr >> pteShift)
)

// Bits in page table entries.
const (
	present    = 1 << 0
	readable   = 1 << 1
	writable   = 1 << 2
	executable = 1 << 3
	user       = 1 << 4
	global     = 1 << 5
	accessed   = 1 << 6
	dirty      = 1 << 7

	ppnShift  = 10
	ppnMask   = ((1 << 44) - 1) << ppnShift
	flagsMask = (1 << ppnShift) - 1

	leafMask = readable | writable | executable
)

// Token encoding, as loaded into satp: MODE in the top four bits, root PPN
// in the low 44.
const (
	tokenModeShift = 60
	tokenModeSv39  = 8
	tokenPPNMask   = (1 << 44) - 1
)

// MapOpts are page table options.
type MapOpts struct {
	// AccessType defines permissions.
	AccessType hostarch.AccessType

	// Global indicates the page is globally accessible.
	Global bool

	// User indicates the page is a user page.
	User bool
}

// PTE is a page table entry.
type PTE uint64

// PTEs is a collection of entries.
type PTEs [entriesPerPage]PTE

// load returns the raw entry.
func (p *PTE) load() uint64 {
	return atomic.LoadUint64((*uint64)(p))
}

// Clear clears this PTE, including any present bit.
func (p *PTE) Clear() {
	atomic.StoreUint64((*uint64)(p), 0)
}

// Valid returns true iff this entry is present.
func (p *PTE) Valid() bool {
	return p.load()&present != 0
}

// IsLeaf returns true iff this entry maps a page rather than pointing at the
// next level.
func (p *PTE) IsLeaf() bool {
	return p.load()&leafMask != 0
}

// Opts returns the PTE options.
//
// These are all options except Valid.
func (p *PTE) Opts() MapOpts {
	v := p.load()
	return MapOpts{
		AccessType: hostarch.AccessType{
			Read:    v&readable != 0,
			Write:   v&writable != 0,
			Execute: v&executable != 0,
		},
		Global: v&global != 0,
		User:   v&user != 0,
	}
}

// Flags returns the low ten bits of the entry.
func (p *PTE) Flags() uint16 {
	return uint16(p.load() & flagsMask)
}

// PageNumber returns the frame this entry points at.
func (p *PTE) PageNumber() hostarch.PageNumber {
	return hostarch.PageNumber((p.load() & ppnMask) >> ppnShift)
}

// Address extracts the address. This should only be used if Valid returns
// true.
func (p *PTE) Address() uintptr {
	return uintptr(p.PageNumber()) << pteShift
}

// Set sets this PTE value.
//
// This does not change the accessed or dirty bits. An entry with no access is
// cleared, since Sv39 reads a present entry without R, W or X as a pointer to
// the next level.
func (p *PTE) Set(addr uintptr, opts MapOpts) {
	if !opts.AccessType.Any() {
		p.Clear()
		return
	}
	v := uint64(addr>>pteShift)<<ppnShift&ppnMask | present | accessed | dirty
	if opts.AccessType.Read {
		v |= readable
	}
	if opts.AccessType.Write {
		v |= writable
	}
	if opts.AccessType.Execute {
		v |= executable
	}
	if opts.User {
		v |= user
	}
	if opts.Global {
		v |= global
	}
	atomic.StoreUint64((*uint64)(p), v)
}

// setPageTable points this entry at the next level table ptes. Interior
// entries carry only the present bit.
func (p *PTE) setPageTable(pt *PageTables, ptes *PTEs) {
	pfn := pt.Allocator.PhysicalFor(ptes)
	atomic.StoreUint64((*uint64)(p), uint64(pfn)<<ppnShift&ppnMask|present)
}

// empty returns true iff no entry is present.
func (ptes *PTEs) empty() bool {
	for i := range ptes {
		if ptes[i].Valid() {
			return false
		}
	}
	return true
}
