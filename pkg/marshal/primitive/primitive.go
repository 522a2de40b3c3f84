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

// Package primitive defines marshal.Marshallable implementations for
// primitive types.
package primitive

import (
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/marshal"
)

// Uint32 is a marshal.Marshallable implementation for uint32.
type Uint32 uint32

// Uint64 is a marshal.Marshallable implementation for uint64.
type Uint64 uint64

// Int64 is a marshal.Marshallable implementation for int64.
type Int64 int64

var (
	_ marshal.Marshallable = (*Uint32)(nil)
	_ marshal.Marshallable = (*Uint64)(nil)
	_ marshal.Marshallable = (*Int64)(nil)
)

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (i *Uint32) SizeBytes() int {
	return 4
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (i *Uint32) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint32(dst[:4], uint32(*i))
	return dst[4:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (i *Uint32) UnmarshalBytes(src []byte) []byte {
	*i = Uint32(hostarch.ByteOrder.Uint32(src[:4]))
	return src[4:]
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (i *Uint64) SizeBytes() int {
	return 8
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (i *Uint64) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[:8], uint64(*i))
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (i *Uint64) UnmarshalBytes(src []byte) []byte {
	*i = Uint64(hostarch.ByteOrder.Uint64(src[:8]))
	return src[8:]
}

// SizeBytes implements marshal.Marshallable.SizeBytes.
func (i *Int64) SizeBytes() int {
	return 8
}

// MarshalBytes implements marshal.Marshallable.MarshalBytes.
func (i *Int64) MarshalBytes(dst []byte) []byte {
	hostarch.ByteOrder.PutUint64(dst[:8], uint64(*i))
	return dst[8:]
}

// UnmarshalBytes implements marshal.Marshallable.UnmarshalBytes.
func (i *Int64) UnmarshalBytes(src []byte) []byte {
	*i = Int64(int64(hostarch.ByteOrder.Uint64(src[:8])))
	return src[8:]
}

// CopyUint64Out is a convenient wrapper for copying out a uint64 value.
func CopyUint64Out(cc marshal.CopyContext, addr hostarch.Addr, src uint64) (int, error) {
	i := Uint64(src)
	return marshal.CopyOut(cc, addr, &i)
}

// CopyUint64In is a convenient wrapper for copying in a uint64 value.
func CopyUint64In(cc marshal.CopyContext, addr hostarch.Addr) (uint64, int, error) {
	var i Uint64
	n, err := marshal.CopyIn(cc, addr, &i)
	return uint64(i), n, err
}

// CopyUint32Out is a convenient wrapper for copying out a uint32 value.
func CopyUint32Out(cc marshal.CopyContext, addr hostarch.Addr, src uint32) (int, error) {
	i := Uint32(src)
	return marshal.CopyOut(cc, addr, &i)
}

// CopyUint32In is a convenient wrapper for copying in a uint32 value.
func CopyUint32In(cc marshal.CopyContext, addr hostarch.Addr) (uint32, int, error) {
	var i Uint32
	n, err := marshal.CopyIn(cc, addr, &i)
	return uint32(i), n, err
}
