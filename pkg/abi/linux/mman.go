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
	"fmt"
	"strings"

	"gvisor.dev/tkernel/pkg/hostarch"
)

// Prot is the permission mask argument of mmap.
type Prot uint64

// Bits of Prot.
const (
	PROT_NONE  Prot = 0
	PROT_READ  Prot = 1 << 0
	PROT_WRITE Prot = 1 << 1
	PROT_EXEC  Prot = 1 << 2

	// PROT_MASK covers every valid bit.
	PROT_MASK = PROT_READ | PROT_WRITE | PROT_EXEC
)

// Valid returns true iff p requests some access and sets no bit outside
// PROT_MASK.
func (p Prot) Valid() bool {
	return p&^PROT_MASK == 0 && p&PROT_MASK != 0
}

// AccessType converts p into page permissions. It is the only conversion
// between the two encodings. Bits outside PROT_MASK are ignored.
func (p Prot) AccessType() hostarch.AccessType {
	return hostarch.AccessType{
		Read:    p&PROT_READ != 0,
		Write:   p&PROT_WRITE != 0,
		Execute: p&PROT_EXEC != 0,
	}
}

// String implements fmt.Stringer.String.
func (p Prot) String() string {
	if p == PROT_NONE {
		return "PROT_NONE"
	}
	var parts []string
	if p&PROT_READ != 0 {
		parts = append(parts, "PROT_READ")
	}
	if p&PROT_WRITE != 0 {
		parts = append(parts, "PROT_WRITE")
	}
	if p&PROT_EXEC != 0 {
		parts = append(parts, "PROT_EXEC")
	}
	if rest := p &^ PROT_MASK; rest != 0 {
		parts = append(parts, fmt.Sprintf("%#x", uint64(rest)))
	}
	return strings.Join(parts, "|")
}
