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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
)

type mapping struct {
	vpn  hostarch.PageNumber
	pfn  hostarch.PageNumber
	opts MapOpts
}

func newTestTables(t *testing.T, frames uint64) (*PageTables, *pgalloc.MemoryFile) {
	t.Helper()
	mf, err := pgalloc.NewMemoryFile(pgalloc.MemoryFileOpts{Frames: frames})
	if err != nil {
		t.Fatalf("NewMemoryFile failed: %v", err)
	}
	t.Cleanup(func() { mf.Release() })
	pt, err := New(NewFrameAllocator(mf))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return pt, mf
}

func checkMappings(t *testing.T, pt *PageTables, want []mapping) {
	t.Helper()
	var got []mapping
	pt.Visit(func(vpn hostarch.PageNumber, pte PTE) bool {
		got = append(got, mapping{vpn: vpn, pfn: pte.PageNumber(), opts: pte.Opts()})
		return true
	})
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(mapping{})); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}
}

var (
	userRW = MapOpts{AccessType: hostarch.ReadWrite, User: true}
	userRX = MapOpts{AccessType: hostarch.AccessType{Read: true, Execute: true}, User: true}
)

func TestAllUnmapped(t *testing.T) {
	pt, _ := newTestTables(t, 16)
	checkMappings(t, pt, nil)
	if _, ok := pt.Translate(0x10); ok {
		t.Errorf("Translate found an entry in empty tables")
	}
}

func TestMapPageTranslate(t *testing.T) {
	pt, _ := newTestTables(t, 16)
	if err := pt.MapPage(0x10000, 42, userRW); err != nil {
		t.Fatalf("MapPage failed: %v", err)
	}
	pte, ok := pt.Translate(0x10000)
	if !ok {
		t.Fatalf("Translate(0x10000) found nothing")
	}
	if got := pte.PageNumber(); got != 42 {
		t.Errorf("PageNumber() = %v, want 42", got)
	}
	if got, want := pte.Flags(), uint16(present|readable|writable|user|accessed|dirty); got != want {
		t.Errorf("Flags() = %#x, want %#x", got, want)
	}
	if _, ok := pt.Translate(0x10001); ok {
		t.Errorf("Translate found a neighbouring page")
	}

	phys, opts, ok := pt.Lookup(hostarch.Addr(0x10000<<12 + 0x123))
	if !ok || phys != hostarch.Addr(42<<12+0x123) || opts != userRW {
		t.Errorf("Lookup = %v, %+v, %t, want %v, %+v, true", phys, opts, ok, hostarch.Addr(42<<12+0x123), userRW)
	}
	checkMappings(t, pt, []mapping{{0x10000, 42, userRW}})
}

func TestMapPageAlreadyMapped(t *testing.T) {
	pt, _ := newTestTables(t, 16)
	if err := pt.MapPage(5, 7, userRW); err != nil {
		t.Fatalf("MapPage failed: %v", err)
	}
	if err := pt.MapPage(5, 8, userRX); !errors.Is(err, ErrAlreadyMapped) {
		t.Fatalf("second MapPage got err %v, want ErrAlreadyMapped", err)
	}
	checkMappings(t, pt, []mapping{{5, 7, userRW}})
}

func TestUnmapPageNotMapped(t *testing.T) {
	pt, _ := newTestTables(t, 16)
	if err := pt.UnmapPage(5); !errors.Is(err, ErrNotMapped) {
		t.Errorf("UnmapPage got err %v, want ErrNotMapped", err)
	}
	if err := pt.UnmapPage(maxVPN); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("UnmapPage(maxVPN) got err %v, want ErrOutOfRange", err)
	}
	if err := pt.MapPage(maxVPN, 1, userRW); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("MapPage(maxVPN) got err %v, want ErrOutOfRange", err)
	}
}

func TestUnmapFreesTables(t *testing.T) {
	pt, mf := newTestTables(t, 16)
	before := mf.Available()
	for _, vpn := range []hostarch.PageNumber{0x10, 0x11, 0x40000} {
		if err := pt.MapPage(vpn, vpn, userRW); err != nil {
			t.Fatalf("MapPage(%v) failed: %v", vpn, err)
		}
	}
	// Two middle and two leaf level nodes.
	if got := before - mf.Available(); got != 4 {
		t.Errorf("mapping used %d table frames, want 4", got)
	}
	if err := pt.UnmapPage(0x10); err != nil {
		t.Fatalf("UnmapPage failed: %v", err)
	}
	if got := before - mf.Available(); got != 4 {
		t.Errorf("partial unmap freed a table still in use: %d frames in use, want 4", got)
	}
	for _, vpn := range []hostarch.PageNumber{0x11, 0x40000} {
		if err := pt.UnmapPage(vpn); err != nil {
			t.Fatalf("UnmapPage(%v) failed: %v", vpn, err)
		}
	}
	if got := mf.Available(); got != before {
		t.Errorf("Available() = %d after unmapping everything, want %d", got, before)
	}
	checkMappings(t, pt, nil)
}

func TestMapRangeAcrossBoundary(t *testing.T) {
	pt, _ := newTestTables(t, 16)
	// Four pages straddling a 2MB boundary.
	start := hostarch.Addr(pmdSize - 2*pteSize)
	if err := pt.Map(start, 4*pteSize, userRX, 0x100000); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	first := start.Floor()
	checkMappings(t, pt, []mapping{
		{first, 0x100, userRX},
		{first + 1, 0x101, userRX},
		{first + 2, 0x102, userRX},
		{first + 3, 0x103, userRX},
	})
	if n := pt.CountMapped(0, maxAddr); n != 4 {
		t.Errorf("CountMapped over everything = %d, want 4", n)
	}
	if n := pt.CountMapped(start+pteSize, 2*pteSize); n != 2 {
		t.Errorf("CountMapped over the middle pages = %d, want 2", n)
	}
	if n := pt.Unmap(start, 4*pteSize); n != 4 {
		t.Errorf("Unmap cleared %d entries, want 4", n)
	}
	checkMappings(t, pt, nil)
}

func TestMapOutOfFrames(t *testing.T) {
	// Reserved frame, root and one spare: the second interior node cannot
	// be allocated.
	pt, mf := newTestTables(t, 3)
	before := mf.Available()
	if err := pt.MapPage(0x10, 0x10, userRW); err != linuxerr.ENOMEM {
		t.Fatalf("MapPage got err %v, want ENOMEM", err)
	}
	if got := mf.Available(); got != before {
		t.Errorf("failed MapPage leaked %d table frames", before-got)
	}
	checkMappings(t, pt, nil)
}

func TestFromToken(t *testing.T) {
	pt, mf := newTestTables(t, 16)
	if err := pt.MapPage(0x20, 0x30, userRW); err != nil {
		t.Fatalf("MapPage failed: %v", err)
	}
	token := pt.Token()
	if token>>60 != 8 || hostarch.PageNumber(token&tokenPPNMask) != pt.RootPageNumber() {
		t.Errorf("Token() = %#x does not encode Sv39 mode and root %v", token, pt.RootPageNumber())
	}

	view, err := FromToken(NewFrameAllocator(mf), token)
	if err != nil {
		t.Fatalf("FromToken failed: %v", err)
	}
	pte, ok := view.Translate(0x20)
	if !ok || pte.PageNumber() != 0x30 {
		t.Errorf("view.Translate(0x20) = %v, %t, want frame 0x30", pte, ok)
	}

	// Releasing the view must not free the original's nodes.
	before := mf.Available()
	view.Release()
	if mf.Available() != before {
		t.Errorf("releasing a view freed frames")
	}
	if _, ok := pt.Translate(0x20); !ok {
		t.Errorf("original lost its mapping after the view was released")
	}

	for _, bad := range []uint64{0, uint64(pt.RootPageNumber()), 8 << 60} {
		if _, err := FromToken(NewFrameAllocator(mf), bad); !errors.Is(err, ErrBadToken) {
			t.Errorf("FromToken(%#x) got err %v, want ErrBadToken", bad, err)
		}
	}
}

func TestRelease(t *testing.T) {
	pt, mf := newTestTables(t, 16)
	before := mf.Available()
	for _, vpn := range []hostarch.PageNumber{1, 0x200, 0x40000} {
		if err := pt.MapPage(vpn, vpn, userRW); err != nil {
			t.Fatalf("MapPage(%v) failed: %v", vpn, err)
		}
	}
	pt.Release()
	// The root is freed as well.
	if got, want := mf.Available(), before+1; got != want {
		t.Errorf("Available() = %d after Release, want %d", got, want)
	}
}

func TestSetNoAccessClears(t *testing.T) {
	var pte PTE
	pte.Set(0x5000, userRW)
	if !pte.Valid() || !pte.IsLeaf() {
		t.Fatalf("Set with access produced %#x", uint64(pte))
	}
	pte.Set(0x5000, MapOpts{User: true})
	if pte.Valid() {
		t.Errorf("Set with no access left a valid entry %#x", uint64(pte))
	}
}
