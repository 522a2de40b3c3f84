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

package rv64

import (
	"gvisor.dev/tkernel/pkg/abi/linux"
	"gvisor.dev/tkernel/pkg/marshal"
	"gvisor.dev/tkernel/pkg/sentry/arch"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
)

// GetTime implements get_time(ts, tz). The time since boot is written to ts;
// tz is ignored.
func GetTime(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	addr := args[0].Pointer()

	tv := linux.TimevalFromMicroseconds(t.Kernel().Clock().NowMicroseconds())
	if _, err := marshal.CopyOut(t, addr, &tv); err != nil {
		return 0, nil, err
	}
	return 0, nil, nil
}
