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
	"gvisor.dev/tkernel/pkg/errors/linuxerr"
	"gvisor.dev/tkernel/pkg/hostarch"
	"gvisor.dev/tkernel/pkg/sentry/arch"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
)

// stdoutFD is the only file descriptor write accepts.
const stdoutFD = 1

// Write implements write(fd, buf, len) for stdout. The buffer is copied in
// one page at a time, so it may span pages that are not physically
// contiguous.
func Write(t *kernel.Task, args arch.SyscallArguments) (uintptr, *kernel.SyscallControl, error) {
	fd := args[0].Int()
	addr := args[1].Pointer()
	size := args[2].SizeT()

	if fd != stdoutFD {
		return 0, nil, linuxerr.EBADF
	}
	if _, ok := addr.AddLength(uint64(size)); !ok {
		return 0, nil, linuxerr.EFAULT
	}

	var (
		buf     [hostarch.PageSize]byte
		written uint
	)
	for written < size {
		cur := addr + hostarch.Addr(written)
		n := min(size-written, uint(hostarch.PageSize-cur.PageOffset()))
		copied, err := t.CopyInBytes(cur, buf[:n])
		if copied > 0 {
			if _, werr := t.Kernel().Stdout().Write(buf[:copied]); werr != nil {
				return 0, nil, werr
			}
			written += uint(copied)
		}
		if err != nil {
			if written > 0 {
				// Partial write.
				return uintptr(written), nil, nil
			}
			return 0, nil, err
		}
	}
	return uintptr(written), nil, nil
}
