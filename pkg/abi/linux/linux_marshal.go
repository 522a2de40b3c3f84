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

package linux

import (
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/marshal"
)

var (
	_ marshal.Marshallable = (*Timeval)(nil)
	_ marshal.Marshallable = (*TaskInfo)(nil)
)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (tv *Timeval) SizeBytes() int {
	return 16
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (tv *Timeval) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[:8], tv.Sec)
	dst = dst[8:]
	hostarch.ByteOrder.PutUint64(dst[:8], tv.Usec)
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (tv *Timeval) UnmarshalBytes(src []byte) []byte {
	tv.Sec = hostarch.ByteOrder.Uint64(src[:8])
	src = src[8:]
	tv.Usec = hostarch.ByteOrder.Uint64(src[:8])
	return src[8:]
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (ti *TaskInfo) SizeBytes() int {
	return 4 + 4*MaxSyscallNum + 4 + 8
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (ti *TaskInfo) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(ti.Status))
	dst = dst[4:]
	for _, n := range ti.SyscallTimes {
		hostarch.ByteOrder.PutUint32(dst[:4], n)
		dst = dst[4:]
	}
	// Padding: dst[:4] ~= [4]byte{0}
	clear(dst[:4])
	dst = dst[4:]
	hostarch.ByteOrder.PutUint64(dst[:8], ti.Time)
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (ti *TaskInfo) UnmarshalBytes(src []byte) []byte {
	ti.Status = TaskStatus(hostarch.ByteOrder.Uint32(src[:4]))
	src = src[4:]
	for i := range ti.SyscallTimes {
		ti.SyscallTimes[i] = hostarch.ByteOrder.Uint32(src[:4])
		src = src[4:]
	}
	// Padding: ~ copy([4]byte(ti._), src[:4])
	src = src[4:]
	ti.Time = hostarch.ByteOrder.Uint64(src[:8])
	return src[8:]
}
