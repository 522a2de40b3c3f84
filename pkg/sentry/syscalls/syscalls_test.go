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

package syscalls

import (
	"testing"

	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/sentry/arch"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
)

func TestError(t *testing.T) {
	sc := Error("set_priority", linuxerr.EINVAL, "not implemented")
	if sc.Name != "set_priority" || sc.Note != "not implemented" || sc.SupportLevel != kernel.SupportUnimplemented {
		t.Errorf("Error() = {Name: %q, Note: %q, SupportLevel: %v}, want {set_priority, not implemented, %v}", sc.Name, sc.Note, sc.SupportLevel, kernel.SyscallSupportLevel(kernel.SupportUnimplemented))
	}
	for _, prio := range []uintptr{0, 2, 16, ^uintptr(0)} {
		rval, ctrl, err := sc.Fn(nil, arch.Args(prio))
		if rval != 0 || ctrl != nil || !linuxerr.Equals(linuxerr.EINVAL, err) {
			t.Errorf("Fn(%#x) = (%d, %v, %v), want (0, nil, EINVAL)", prio, rval, ctrl, err)
		}
	}
}

func TestSupported(t *testing.T) {
	fn := func(*kernel.Task, arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
		return 5, nil, nil
	}
	for sc, want := range map[*kernel.Syscall]string{
		ptr(Supported("a", fn)):                     "Full Support",
		ptr(PartiallySupported("a", fn, "partial")): "Partial Support",
	} {
		if sc.Name != "a" {
			t.Errorf("Name = %q, want a", sc.Name)
		}
		if got := sc.SupportLevel.String(); got != want {
			t.Errorf("SupportLevel = %q, want %q", got, want)
		}
		if rval, _, _ := sc.Fn(nil, arch.SyscallArguments{}); rval != 5 {
			t.Errorf("Fn() = %d, want 5", rval)
		}
	}
}

func ptr(sc kernel.Syscall) *kernel.Syscall {
	return &sc
}
