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

package linuxerr

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
	"gvisor.dev/tkernel/pkg/errors"
)

func TestErrorFromUnix(t *testing.T) {
	for _, tc := range []struct {
		errno unix.Errno
		want  *errors.Error
	}{
		{unix.EINVAL, EINVAL},
		{unix.EFAULT, EFAULT},
		{unix.ENOMEM, ENOMEM},
		{unix.EEXIST, EEXIST},
		{unix.ENOSYS, ENOSYS},
	} {
		got := ErrorFromUnix(tc.errno)
		if got != tc.want {
			t.Errorf("ErrorFromUnix(%v) = %v, want %v", tc.errno, got, tc.want)
		}
		if !Equals(tc.want, tc.errno) {
			t.Errorf("Equals(%v, %v) = false, want true", tc.want, tc.errno)
		}
		if ToUnix(tc.want) != tc.errno {
			t.Errorf("ToUnix(%v) = %v, want %v", tc.want, ToUnix(tc.want), tc.errno)
		}
	}
	if err := ErrorFromUnix(0); err != nil {
		t.Errorf("ErrorFromUnix(0) = %v, want nil", err)
	}
}

func TestFindWrapped(t *testing.T) {
	err := fmt.Errorf("mapping page: %w", EEXIST)
	e, ok := Find(err)
	if !ok || e != EEXIST {
		t.Fatalf("Find(%v) = %v, %t, want %v, true", err, e, ok, EEXIST)
	}
	if _, ok := Find(fmt.Errorf("plain")); ok {
		t.Errorf("Find found an errno in an error that has none")
	}
	if e, ok := Find(unix.EFAULT); !ok || e != EFAULT {
		t.Errorf("Find(unix.EFAULT) = %v, %t, want %v, true", e, ok, EFAULT)
	}
}
