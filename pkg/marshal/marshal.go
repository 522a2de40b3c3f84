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

// Package marshal defines the Marshallable interface for serializing
// fixed-layout structures to and from user memory.
//
// Serialization uses hostarch.ByteOrder and follows the C layout of each
// type, including padding.
package marshal

import (
	"gvisor.dev/tkernel/pkg/hostarch"
)

// CopyContext defines the memory operations required to marshal to and from
// user memory. Typically, kernel.Task is used to provide a CopyContext.
type CopyContext interface {
	// CopyOutBytes copies src to the memory at addr, returning the number of
	// bytes copied. A short copy is always accompanied by an error.
	CopyOutBytes(addr hostarch.Addr, src []byte) (int, error)

	// CopyInBytes copies len(dst) bytes from the memory at addr into dst,
	// returning the number of bytes copied.
	CopyInBytes(addr hostarch.Addr, dst []byte) (int, error)
}

// Marshallable represents operations on a type that can be marshalled to
// and from memory.
type Marshallable interface {
	// SizeBytes is the size of the memory representation of a type in
	// marshalled form.
	SizeBytes() int

	// MarshalBytes serializes a copy of a type to dst and returns the
	// remaining portion of dst. Precondition: dst must be at least
	// SizeBytes() in length.
	MarshalBytes(dst []byte) []byte

	// UnmarshalBytes deserializes a type from src and returns the remaining
	// portion of src. Precondition: src must be at least SizeBytes() in
	// length.
	UnmarshalBytes(src []byte) []byte
}

// Marshal returns the serialized contents of m in a newly allocated byte
// slice.
func Marshal(m Marshallable) []byte {
	buf := make([]byte, m.SizeBytes())
	m.MarshalBytes(buf)
	return buf
}

// CopyOut marshals m and copies it to addr.
func CopyOut(cc CopyContext, addr hostarch.Addr, m Marshallable) (int, error) {
	return cc.CopyOutBytes(addr, Marshal(m))
}

// CopyIn copies SizeBytes() bytes from addr and unmarshals them into m. m is
// left unmodified if the copy fails.
func CopyIn(cc CopyContext, addr hostarch.Addr, m Marshallable) (int, error) {
	buf := make([]byte, m.SizeBytes())
	n, err := cc.CopyInBytes(addr, buf)
	if err != nil {
		return n, err
	}
	m.UnmarshalBytes(buf)
	return n, nil
}
