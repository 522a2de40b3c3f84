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

// Package cmd holds implementations of the tkrun commands.
package cmd

import (
	"fmt"
	"io"
	"os"

	"gvisor.dev/tkernel/pkg/log"
)

// ErrorLogger is where error messages are copied to, in addition to stderr,
// if set.
var ErrorLogger io.Writer

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	msg := fmt.Sprintf(format+"\n", args...)
	fmt.Fprint(os.Stderr, msg)
	if ErrorLogger != nil {
		fmt.Fprint(ErrorLogger, msg)
	}
	// Return an error that is unlikely to be used by a scenario.
	os.Exit(128)
}
