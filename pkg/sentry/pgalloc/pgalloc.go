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

// Package pgalloc contains the physical frame allocator.
//
// A MemoryFile is an anonymous host mapping treated as physical memory: frame
// N lives at byte offset N*PageSize, so a physical address is an offset into
// the mapping. Page tables and framed mapping areas both allocate from it.
package pgalloc

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
	"gvisor.dev/tkernel/pkg/bitmap"
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/sentry/usage"
)

// MinFrames is the smallest arena NewMemoryFile accepts: the reserved frame
// plus one root page table.
const MinFrames = 2

// MemoryFileOpts provides options to NewMemoryFile.
type MemoryFileOpts struct {
	// Frames is the number of frames in the arena, including the reserved
	// frame 0.
	Frames uint64

	// Reserved is the number of frames after frame 0 set aside for identity
	// mappings. Frames [1, 1+Reserved) are never handed out by Allocate.
	Reserved uint64
}

// MemoryFile is a fixed pool of physical frames.
//
// Frames are handed out from a recycled stack first and then from a bump
// pointer over never-used frames. Frame 0 is reserved so that a zero PFN
// never names allocated memory. The identity window follows frame 0; its
// frames belong to no allocation, so mapping them cannot alias page tables or
// another address space's private frames.
type MemoryFile struct {
	// mapping is the host memory backing every frame. It is immutable after
	// NewMemoryFile.
	mapping []byte

	// frames is len(mapping) / PageSize.
	frames uint64

	// reserved is the size of the identity window.
	reserved uint64

	// usage accounts allocated frames by kind.
	usage usage.MemoryLocked

	mu sync.Mutex

	// current is the lowest frame that has never been allocated.
	//
	// current is protected by mu.
	current hostarch.PageNumber

	// recycled holds freed frames, reused LIFO.
	//
	// recycled is protected by mu.
	recycled []hostarch.PageNumber

	// allocated has a bit set for every frame currently owned by someone.
	//
	// allocated is protected by mu.
	allocated bitmap.Bitmap

	// kinds records the usage kind each allocated frame was charged to.
	//
	// kinds is protected by mu.
	kinds []usage.MemoryKind
}

// NewMemoryFile maps a new arena of opts.Frames frames.
func NewMemoryFile(opts MemoryFileOpts) (*MemoryFile, error) {
	if opts.Frames < MinFrames || opts.Frames-MinFrames < opts.Reserved {
		return nil, fmt.Errorf("memory file needs at least %d frames plus %d reserved, got %d", MinFrames, opts.Reserved, opts.Frames)
	}
	size := opts.Frames * hostarch.PageSize
	if size/hostarch.PageSize != opts.Frames || size > uint64(^uint(0)>>1) {
		return nil, fmt.Errorf("memory file of %d frames is too large", opts.Frames)
	}
	m, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("failed to map %d bytes of frame memory: %w", size, err)
	}
	f := &MemoryFile{
		mapping:   m,
		frames:    opts.Frames,
		reserved:  opts.Reserved,
		current:   hostarch.PageNumber(1 + opts.Reserved),
		allocated: bitmap.New(opts.Frames),
		kinds:     make([]usage.MemoryKind, opts.Frames),
	}
	for pfn := uint64(0); pfn <= opts.Reserved; pfn++ {
		f.allocated.Set(pfn)
	}
	f.usage.Inc((1+opts.Reserved)*hostarch.PageSize, usage.System)
	log.Debugf("pgalloc: mapped %d frames (%d bytes), %d reserved for identity mappings", opts.Frames, size, opts.Reserved)
	return f, nil
}

// Release unmaps the arena. No frame may be used afterwards.
func (f *MemoryFile) Release() error {
	if f.mapping == nil {
		return nil
	}
	err := unix.Munmap(f.mapping)
	f.mapping = nil
	return err
}

// Allocate returns a zeroed frame charged to kind. It returns ENOMEM if the
// arena is exhausted.
func (f *MemoryFile) Allocate(kind usage.MemoryKind) (hostarch.PageNumber, error) {
	f.mu.Lock()
	var pfn hostarch.PageNumber
	switch {
	case len(f.recycled) > 0:
		pfn = f.recycled[len(f.recycled)-1]
		f.recycled = f.recycled[:len(f.recycled)-1]
	case uint64(f.current) < f.frames:
		pfn = f.current
		f.current++
	default:
		f.mu.Unlock()
		return 0, linuxerr.ENOMEM
	}
	f.allocated.Set(uint64(pfn))
	f.kinds[pfn] = kind
	f.mu.Unlock()

	clear(f.Frame(pfn))
	f.usage.Inc(hostarch.PageSize, kind)
	return pfn, nil
}

// Free returns pfn to the pool.
//
// Precondition: pfn was returned by Allocate and has not been freed since.
// Violations panic.
func (f *MemoryFile) Free(pfn hostarch.PageNumber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uint64(pfn) <= f.reserved || uint64(pfn) >= f.frames {
		panic(fmt.Sprintf("pgalloc: free of invalid frame %v", pfn))
	}
	if !f.allocated.Clear(uint64(pfn)) {
		panic(fmt.Sprintf("pgalloc: frame %v has not been allocated", pfn))
	}
	f.recycled = append(f.recycled, pfn)
	f.usage.Dec(hostarch.PageSize, f.kinds[pfn])
}

// IsAllocated returns whether pfn is currently owned.
func (f *MemoryFile) IsAllocated(pfn hostarch.PageNumber) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocated.Test(uint64(pfn))
}

// IsReserved returns whether pfn is in the identity window.
func (f *MemoryFile) IsReserved(pfn hostarch.PageNumber) bool {
	return pfn >= 1 && uint64(pfn) <= f.reserved
}

// Reserved returns the size of the identity window.
func (f *MemoryFile) Reserved() uint64 {
	return f.reserved
}

// Frame returns the bytes of frame pfn.
func (f *MemoryFile) Frame(pfn hostarch.PageNumber) []byte {
	if uint64(pfn) >= f.frames {
		panic(fmt.Sprintf("pgalloc: frame %v out of range [0, %d)", pfn, f.frames))
	}
	off := uint64(pfn) * hostarch.PageSize
	return f.mapping[off : off+hostarch.PageSize : off+hostarch.PageSize]
}

// Slice returns n bytes starting at physical address phys. The range must not
// cross a frame boundary.
func (f *MemoryFile) Slice(phys hostarch.Addr, n uint64) []byte {
	frame := f.Frame(hostarch.PageNumber(phys >> hostarch.PageShift))
	off := phys.PageOffset()
	if off+n > hostarch.PageSize {
		panic(fmt.Sprintf("pgalloc: slice [%v, +%d) crosses a frame boundary", phys, n))
	}
	return frame[off : off+n]
}

// Frames returns the total number of frames, including frame 0 and the
// identity window.
func (f *MemoryFile) Frames() uint64 {
	return f.frames
}

// Available returns the number of frames Allocate can still hand out.
func (f *MemoryFile) Available() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames - f.allocated.Count()
}

// Usage returns the allocator's accounting.
func (f *MemoryFile) Usage() *usage.MemoryLocked {
	return &f.usage
}
