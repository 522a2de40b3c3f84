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
	"unsafe"

	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
)

// ptesOf reinterprets a frame as a table node.
func ptesOf(frame []byte) *PTEs {
	if len(frame) < int(unsafe.Sizeof(PTEs{})) {
		panic("frame too small for a page table node")
	}
	return (*PTEs)(unsafe.Pointer(&frame[0]))
}

// physicalOf returns the physical address of a table node.
func physicalOf(mf *pgalloc.MemoryFile, ptes *PTEs) hostarch.Addr {
	return mf.PhysicalOf(unsafe.Pointer(ptes))
}
