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

// Package config provides basic infrastructure to set configuration settings
// for tkrun. Each setting that can be changed from the command line must have
// a field in Config tagged with the flag name, and the flag must be
// registered in RegisterFlags. Settings may also come from a TOML file named
// by --config; flags given on the command line take precedence over the file.
package config

import (
	"fmt"

	"gvisor.dev/tkernel/pkg/sentry/ktime"
)

// Config holds configuration that is not part of a scenario.
//
// Follow the steps in the package comment to add a new setting.
type Config struct {
	// Frames is the number of physical frames given to each kernel.
	Frames uint64 `flag:"frames"`

	// IdentityFrames is the number of frames after frame 0 reserved for
	// identity-mapped areas. Scenarios may only identity map pages
	// [1, IdentityFrames].
	IdentityFrames uint64 `flag:"identity-frames"`

	// Clock selects the kernel clock.
	Clock ClockKind `flag:"clock"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// Strace indicates that every syscall should be logged with its result.
	Strace bool `flag:"strace"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format, "text" or "json".
	LogFormat string `flag:"log-format"`

	// Metrics indicates that each kernel's metrics should be printed in the
	// Prometheus text format once its scenario finishes.
	Metrics bool `flag:"metrics"`

	// ConfigFile is the TOML file that settings were read from, if any.
	ConfigFile string `flag:"config"`
}

// minFrames is enough for the reserved frame, a root table and one mapping.
const minFrames = 4

func (c *Config) validate() error {
	if c.Frames < minFrames {
		return fmt.Errorf("--frames must be at least %d, got %d", minFrames, c.Frames)
	}
	if c.IdentityFrames > c.Frames-minFrames {
		return fmt.Errorf("--identity-frames=%d leaves fewer than %d of %d frames to allocate", c.IdentityFrames, minFrames, c.Frames)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	return nil
}

// NewClock returns a kernel clock of the configured kind.
func (c *Config) NewClock() ktime.Clock {
	if c.Clock == ClockManual {
		return ktime.NewManualClock(0)
	}
	return ktime.NewMonotonicClock()
}

// ClockKind selects the clock a kernel reads time from.
type ClockKind int

const (
	// ClockMonotonic reads the host monotonic clock, relative to kernel
	// creation.
	ClockMonotonic ClockKind = iota

	// ClockManual is a clock that stays at zero. It makes get_time and
	// task_info results reproducible.
	ClockManual
)

func clockKindPtr(v ClockKind) *ClockKind {
	return &v
}

// Set implements flag.Value.
func (c *ClockKind) Set(v string) error {
	switch v {
	case "monotonic":
		*c = ClockMonotonic
	case "manual":
		*c = ClockManual
	default:
		return fmt.Errorf("invalid clock %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (c *ClockKind) Get() any {
	return *c
}

// String implements flag.Value.
func (c ClockKind) String() string {
	switch c {
	case ClockMonotonic:
		return "monotonic"
	case ClockManual:
		return "manual"
	}
	panic(fmt.Sprintf("Invalid clock kind %d", c))
}
