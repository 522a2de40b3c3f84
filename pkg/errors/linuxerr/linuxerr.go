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

// Package linuxerr contains syscall error codes exported as error interface
// pointers. This allows for fast comparison and return operations comparable
// to unix.Errno constants.
package linuxerr

import (
	goerrors "errors"

	"golang.org/x/sys/unix"
	"gvisor.dev/tkernel/pkg/abi/linux/errno"
	"gvisor.dev/tkernel/pkg/errors"
)

// The following errors are semantically identical to the unix.Errno values
// of the same name. The Errno method returns a number such that
// unix.Errno(EPERM.Errno()) == unix.EPERM.
var (
	EPERM     = errors.New(errno.EPERM, "operation not permitted")
	ENOENT    = errors.New(errno.ENOENT, "no such file or directory")
	ESRCH     = errors.New(errno.ESRCH, "no such process")
	EINTR     = errors.New(errno.EINTR, "interrupted system call")
	EBADF     = errors.New(errno.EBADF, "bad file number")
	EAGAIN    = errors.New(errno.EAGAIN, "try again")
	ENOMEM    = errors.New(errno.ENOMEM, "out of memory")
	EACCES    = errors.New(errno.EACCES, "permission denied")
	EFAULT    = errors.New(errno.EFAULT, "bad address")
	EEXIST    = errors.New(errno.EEXIST, "file exists")
	EINVAL    = errors.New(errno.EINVAL, "invalid argument")
	ENOSPC    = errors.New(errno.ENOSPC, "no space left on device")
	ERANGE    = errors.New(errno.ERANGE, "math result not representable")
	ENOSYS    = errors.New(errno.ENOSYS, "invalid system call number")
	EOVERFLOW = errors.New(errno.EOVERFLOW, "value too large for defined data type")
)

// errorSlice is indexed by errno.
var errorSlice = []*errors.Error{
	errno.EPERM:     EPERM,
	errno.ENOENT:    ENOENT,
	errno.ESRCH:     ESRCH,
	errno.EINTR:     EINTR,
	errno.EBADF:     EBADF,
	errno.EAGAIN:    EAGAIN,
	errno.ENOMEM:    ENOMEM,
	errno.EACCES:    EACCES,
	errno.EFAULT:    EFAULT,
	errno.EEXIST:    EEXIST,
	errno.EINVAL:    EINVAL,
	errno.ENOSPC:    ENOSPC,
	errno.ERANGE:    ERANGE,
	errno.ENOSYS:    ENOSYS,
	errno.EOVERFLOW: EOVERFLOW,
}

// ErrorFromUnix returns a linuxerr from a unix.Errno.
func ErrorFromUnix(err unix.Errno) error {
	if err == unix.Errno(0) {
		return nil
	}
	if int(err) < len(errorSlice) {
		if e := errorSlice[err]; e != nil {
			return e
		}
	}
	return errors.New(errno.Errno(err), err.Error())
}

// ToError converts a linuxerr to an error type.
func ToError(err *errors.Error) error {
	if err == nil {
		return nil
	}
	return err
}

// ToUnix converts a linuxerr to a unix.Errno.
func ToUnix(e *errors.Error) unix.Errno {
	var unixErr unix.Errno
	if e != nil {
		unixErr = unix.Errno(e.Errno())
	}
	return unixErr
}

// Equals compares a linuxerr to a given error.
func Equals(e *errors.Error, err error) bool {
	var unixErr unix.Errno
	if e != nil {
		unixErr = unix.Errno(e.Errno())
	}
	if err == nil {
		err = unix.Errno(0)
	}
	return e == err || unixErr == err
}

// Find returns the *errors.Error carried by err or any error it wraps.
func Find(err error) (*errors.Error, bool) {
	var e *errors.Error
	if goerrors.As(err, &e) {
		return e, true
	}
	var u unix.Errno
	if goerrors.As(err, &u) {
		if ee, ok := ErrorFromUnix(u).(*errors.Error); ok {
			return ee, true
		}
	}
	return nil, false
}
