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

// Package hostarch contains architecture-specific constants and address
// helpers shared by the memory management packages.
package hostarch

import (
	"encoding/binary"
)

const (
	// PageShift is the binary log of the page size.
	PageShift = 12

	// PageSize is the size of a page in bytes.
	PageSize = 1 << PageShift

	// VAWidth is the number of significant bits in a user virtual address
	// (three levels of 9 bits plus the page offset).
	VAWidth = 39

	// MaxUserAddress is one past the highest user virtual address.
	MaxUserAddress = Addr(1) << VAWidth
)

// ByteOrder is the native byte order (little endian).
var ByteOrder = binary.LittleEndian
