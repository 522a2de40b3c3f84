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

// Package bitmap provides a fixed-size bitmap used to track frame ownership.
package bitmap

import (
	"math/bits"
)

// Bitmap is a fixed-size set of small integers.
type Bitmap struct {
	// numOnes is the number of ones in the bitmap.
	numOnes uint64

	// size is the number of addressable bits.
	size uint64

	// bitBlock holds the bits, 64 entries per word.
	bitBlock []uint64
}

// New creates a new empty Bitmap holding size bits.
func New(size uint64) Bitmap {
	return Bitmap{
		size:     size,
		bitBlock: make([]uint64, (size+63)/64),
	}
}

// Size returns the number of addressable bits.
func (b *Bitmap) Size() uint64 {
	return b.size
}

// Count returns the number of set bits.
func (b *Bitmap) Count() uint64 {
	return b.numOnes
}

// IsEmpty returns true if no bit is set.
func (b *Bitmap) IsEmpty() bool {
	return b.numOnes == 0
}

// Test returns whether bit i is set. Bits beyond Size are never set.
func (b *Bitmap) Test(i uint64) bool {
	if i >= b.size {
		return false
	}
	return b.bitBlock[i/64]&(uint64(1)<<(i%64)) != 0
}

// Set sets bit i and reports whether it was previously clear.
//
// Precondition: i < Size().
func (b *Bitmap) Set(i uint64) bool {
	blockNum, mask := i/64, uint64(1)<<(i%64)
	old := b.bitBlock[blockNum]
	if old&mask != 0 {
		return false
	}
	b.bitBlock[blockNum] = old | mask
	b.numOnes++
	return true
}

// Clear clears bit i and reports whether it was previously set.
//
// Precondition: i < Size().
func (b *Bitmap) Clear(i uint64) bool {
	blockNum, mask := i/64, uint64(1)<<(i%64)
	old := b.bitBlock[blockNum]
	if old&mask == 0 {
		return false
	}
	b.bitBlock[blockNum] = old &^ mask
	b.numOnes--
	return true
}

// FirstOne returns the first set bit in [start, Size()). ok is false if there
// is none.
func (b *Bitmap) FirstOne(start uint64) (bit uint64, ok bool) {
	i, nbit := start/64, start%64
	n := uint64(len(b.bitBlock))
	if i >= n {
		return 0, false
	}
	w := b.bitBlock[i] & (^uint64(0) << nbit)
	for {
		if w != 0 {
			bit = uint64(bits.TrailingZeros64(w)) + i*64
			return bit, bit < b.size
		}
		i++
		if i == n {
			return 0, false
		}
		w = b.bitBlock[i]
	}
}

// ToSlice returns the set bits in increasing order. For example, a bitmap of
// [0, 1, 0, 1] will return the slice [1, 3].
func (b *Bitmap) ToSlice() []uint64 {
	out := make([]uint64, 0, b.numOnes)
	var base uint64
	for _, block := range b.bitBlock {
		for block != 0 {
			// Extract the lowest set bit.
			j := block & -block
			out = append(out, base+uint64(bits.TrailingZeros64(j)))
			block ^= j
		}
		base += 64
	}
	return out
}
