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

	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/ring0/pagetables"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
)

// view rebuilds the page table named by token.
func view(mf *pgalloc.MemoryFile, token uint64) (*pagetables.PageTables, error) {
	pt, err := pagetables.FromToken(pagetables.NewFrameAllocator(mf), token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", linuxerr.EFAULT, err)
	}
	return pt, nil
}

// lookup returns the physical address of addr, failing with EFAULT if the
// page is unmapped or is not backed by a frame of mf.
func lookup(mf *pgalloc.MemoryFile, pt *pagetables.PageTables, addr hostarch.Addr) (hostarch.Addr, pagetables.MapOpts, error) {
	phys, opts, ok := pt.Lookup(addr)
	if !ok {
		return 0, opts, linuxerr.EFAULT
	}
	if uint64(phys.Floor()) >= mf.Frames() {
		return 0, opts, linuxerr.EFAULT
	}
	return phys, opts, nil
}

// Translate returns the physical address that addr maps to in the address
// space identified by token. It returns EFAULT if addr is unmapped.
func Translate(mf *pgalloc.MemoryFile, token uint64, addr hostarch.Addr) (hostarch.Addr, error) {
	pt, err := view(mf, token)
	if err != nil {
		return 0, err
	}
	phys, _, err := lookup(mf, pt, addr)
	return phys, err
}

// TranslateRef returns a kernel view of the size bytes at addr in the address
// space identified by token. Writes through the returned slice land in user
// memory.
//
// The object must lie within one page, since neighbouring user pages need not
// be physically contiguous; an object that crosses a page boundary is
// EFAULT. Use CopyOutBytes and CopyInBytes for arbitrary ranges.
func TranslateRef(mf *pgalloc.MemoryFile, token uint64, addr hostarch.Addr, size uint64) ([]byte, error) {
	if addr.PageOffset()+size > hostarch.PageSize {
		return nil, linuxerr.EFAULT
	}
	phys, err := Translate(mf, token, addr)
	if err != nil {
		return nil, err
	}
	return mf.Slice(phys, size), nil
}

// forEachPage calls fn with the kernel view of each page-bounded piece of
// [addr, addr+length), in order. It stops at the first piece that fails to
// translate or that check rejects, and returns the number of bytes visited
// before it.
func forEachPage(mf *pgalloc.MemoryFile, pt *pagetables.PageTables, addr hostarch.Addr, length int, check func(hostarch.Addr, pagetables.MapOpts) error, fn func(done int, b []byte)) (int, error) {
	done := 0
	for done < length {
		cur := addr + hostarch.Addr(done)
		if cur < addr {
			return done, linuxerr.EFAULT
		}
		n := min(length-done, int(hostarch.PageSize-cur.PageOffset()))
		phys, opts, err := lookup(mf, pt, cur)
		if err != nil {
			return done, err
		}
		if check != nil {
			if err := check(cur, opts); err != nil {
				return done, err
			}
		}
		fn(done, mf.Slice(phys, uint64(n)))
		done += n
	}
	return done, nil
}

// CopyOutBytes copies src to addr in the address space identified by token,
// one page at a time. It returns the number of bytes copied; if that is less
// than len(src) the error says why.
func CopyOutBytes(mf *pgalloc.MemoryFile, token uint64, addr hostarch.Addr, src []byte) (int, error) {
	pt, err := view(mf, token)
	if err != nil {
		return 0, err
	}
	return forEachPage(mf, pt, addr, len(src), nil, func(done int, b []byte) {
		copy(b, src[done:])
	})
}

// CopyInBytes copies len(dst) bytes from addr in the address space identified
// by token into dst, one page at a time.
func CopyInBytes(mf *pgalloc.MemoryFile, token uint64, addr hostarch.Addr, dst []byte) (int, error) {
	pt, err := view(mf, token)
	if err != nil {
		return 0, err
	}
	return forEachPage(mf, pt, addr, len(dst), nil, func(done int, b []byte) {
		copy(dst[done:], b)
	})
}

// CopyOutBytes copies src into mm at addr. See the package-level
// CopyOutBytes.
func (mm *MemoryManager) CopyOutBytes(addr hostarch.Addr, src []byte) (int, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	return forEachPage(mm.mf, mm.pt, addr, len(src), nil, func(done int, b []byte) {
		copy(b, src[done:])
	})
}

// CopyInBytes copies from mm at addr into dst. See the package-level
// CopyInBytes.
func (mm *MemoryManager) CopyInBytes(addr hostarch.Addr, dst []byte) (int, error) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	return forEachPage(mm.mf, mm.pt, addr, len(dst), nil, func(done int, b []byte) {
		copy(dst[done:], b)
	})
}

// Fault describes a user access the MMU would refuse.
type Fault struct {
	// Addr is the first faulting address.
	Addr hostarch.Addr

	// Access is the attempted access.
	Access hostarch.AccessType

	// Mapped is true if the page is mapped but lacks the User bit or the
	// requested access.
	Mapped bool
}

// Error implements error.Error.
func (f *Fault) Error() string {
	if f.Mapped {
		return fmt.Sprintf("%v access to %v denied", f.Access, f.Addr)
	}
	return fmt.Sprintf("%v access to unmapped %v", f.Access, f.Addr)
}

// Unwrap lets errors.Is match EFAULT.
func (f *Fault) Unwrap() error {
	return linuxerr.EFAULT
}

// userCheck returns a page check that enforces what the MMU enforces for
// user mode: the User bit and a superset of at.
func userCheck(at hostarch.AccessType) func(hostarch.Addr, pagetables.MapOpts) error {
	return func(addr hostarch.Addr, opts pagetables.MapOpts) error {
		if !opts.User || !opts.AccessType.SupersetOf(at) {
			return &Fault{Addr: addr, Access: at, Mapped: true}
		}
		return nil
	}
}

// asFault converts a translation failure at addr into a *Fault.
func asFault(err error, addr hostarch.Addr, at hostarch.AccessType) error {
	if _, ok := err.(*Fault); ok || err == nil {
		return err
	}
	return &Fault{Addr: addr, Access: at}
}

// UserLoad performs a user-mode read of len(dst) bytes at addr. Unlike
// CopyInBytes it honors page permissions and returns a *Fault on the first
// page user code could not read.
func (mm *MemoryManager) UserLoad(addr hostarch.Addr, dst []byte) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	n, err := forEachPage(mm.mf, mm.pt, addr, len(dst), userCheck(hostarch.Read), func(done int, b []byte) {
		copy(dst[done:], b)
	})
	return asFault(err, addr+hostarch.Addr(n), hostarch.Read)
}

// UserStore performs a user-mode write of src at addr, honoring page
// permissions.
//
// The whole range is checked before anything is written, so a faulting store
// leaves memory untouched.
func (mm *MemoryManager) UserStore(addr hostarch.Addr, src []byte) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	if err := mm.checkAccessLocked(addr, len(src), hostarch.Write); err != nil {
		return err
	}
	_, err := forEachPage(mm.mf, mm.pt, addr, len(src), nil, func(done int, b []byte) {
		copy(b, src[done:])
	})
	return err
}

// CheckAccess returns a *Fault if user code could not perform access at on
// every byte of [addr, addr+length).
func (mm *MemoryManager) CheckAccess(addr hostarch.Addr, length int, at hostarch.AccessType) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkLive()
	return mm.checkAccessLocked(addr, length, at)
}

// Preconditions: mm.mu must be locked.
func (mm *MemoryManager) checkAccessLocked(addr hostarch.Addr, length int, at hostarch.AccessType) error {
	n, err := forEachPage(mm.mf, mm.pt, addr, length, userCheck(at), func(int, []byte) {})
	return asFault(err, addr+hostarch.Addr(n), at)
}
