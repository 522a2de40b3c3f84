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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/tkernel/pkg/sentry/ktime"
)

func newFlags(t *testing.T) *flag.FlagSet {
	t.Helper()
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tkrun.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlags(t))
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Frames:    1024,
		Clock:     ClockMonotonic,
		LogFormat: "text",
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("NewFromFlags() mismatch (-want +got):\n%s", diff)
	}

	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlags(t)
	if err := testFlags.Lookup("frames").Value.Set("64"); err != nil {
		t.Errorf("Flag set: %v", err)
	}
	if err := testFlags.Lookup("clock").Value.Set("manual"); err != nil {
		t.Errorf("Flag set: %v", err)
	}
	if err := testFlags.Lookup("strace").Value.Set("true"); err != nil {
		t.Errorf("Flag set: %v", err)
	}
	if err := testFlags.Lookup("identity-frames").Value.Set("16"); err != nil {
		t.Errorf("Flag set: %v", err)
	}

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(64); c.Frames != want {
		t.Errorf("Frames=%v, want: %v", c.Frames, want)
	}
	if want := ClockManual; c.Clock != want {
		t.Errorf("Clock=%v, want: %v", c.Clock, want)
	}
	if want := true; c.Strace != want {
		t.Errorf("Strace=%v, want: %v", c.Strace, want)
	}
	if want := uint64(16); c.IdentityFrames != want {
		t.Errorf("IdentityFrames=%v, want: %v", c.IdentityFrames, want)
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newFlags(t)
	testFlags.Set("frames", "64")
	testFlags.Set("debug", "true")
	testFlags.Set("metrics", "false") // Matches default value.
	testFlags.Set("log-format", "json")
	testFlags.Set("clock", "manual")
	testFlags.Set("identity-frames", "8")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	flags := c.ToFlags()
	t.Logf("Flags: %s", flags)
	fm := map[string]string{}
	for _, f := range flags {
		kv := strings.Split(f, "=")
		fm[kv[0]] = kv[1]
	}
	want := map[string]string{
		"--frames":          "64",
		"--debug":           "true",
		"--log-format":      "json",
		"--clock":           "manual",
		"--identity-frames": "8",
	}
	if diff := cmp.Diff(want, fm); diff != "" {
		t.Errorf("ToFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidFlags(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value string
	}{
		{name: "frames", value: "2"},
		{name: "identity-frames", value: "1021"},
		{name: "log-format", value: "xml"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlags(t)
			if err := testFlags.Set(tc.name, tc.value); err != nil {
				t.Fatalf("Flag set: %v", err)
			}
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags() with --%s=%s succeeded, want error", tc.name, tc.value)
			}
		})
	}

	if err := newFlags(t).Set("clock", "sundial"); err == nil {
		t.Errorf("--clock=sundial accepted")
	}
}

func TestOverride(t *testing.T) {
	testFlags := newFlags(t)
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Override(testFlags, "frames", "256"); err != nil {
		t.Fatalf("Override(frames) failed: %v", err)
	}
	if c.Frames != 256 {
		t.Errorf("Frames=%d, want: 256", c.Frames)
	}
	if err := c.Override(testFlags, "frames", "1"); err == nil {
		t.Errorf("Override(frames, 1) succeeded, want error")
	}
	if err := c.Override(testFlags, "oops", "1"); err == nil {
		t.Errorf("Override(oops) succeeded, want error")
	}
}

func TestConfigFile(t *testing.T) {
	path := writeFile(t, `
frames = 64
clock = "manual"
strace = true
log-format = "json"
`)
	testFlags := newFlags(t)
	testFlags.Set("config", path)
	// Set on the command line, so the file's value is ignored.
	testFlags.Set("strace", "false")

	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Frames:     64,
		Clock:      ClockManual,
		LogFormat:  "json",
		ConfigFile: path,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("NewFromFlags() mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigFileErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{name: "syntax", contents: "frames = = 3"},
		{name: "unknown", contents: "bogus = 1"},
		{name: "nested", contents: `config = "other.toml"`},
		{name: "array", contents: "frames = [1, 2]"},
		{name: "float", contents: "frames = 1.5"},
		{name: "type", contents: `frames = "many"`},
		{name: "invalid", contents: "frames = 2"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlags(t)
			testFlags.Set("config", writeFile(t, tc.contents))
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags() with %q succeeded, want error", tc.contents)
			}
		})
	}

	testFlags := newFlags(t)
	testFlags.Set("config", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := NewFromFlags(testFlags); err == nil {
		t.Errorf("NewFromFlags() with a missing file succeeded, want error")
	}
}

func TestNewClock(t *testing.T) {
	c := &Config{Clock: ClockManual}
	if _, ok := c.NewClock().(*ktime.ManualClock); !ok {
		t.Errorf("NewClock() with %v = %T, want *ktime.ManualClock", c.Clock, c.NewClock())
	}
	c.Clock = ClockMonotonic
	if _, ok := c.NewClock().(*ktime.MonotonicClock); !ok {
		t.Errorf("NewClock() with %v = %T, want *ktime.MonotonicClock", c.Clock, c.NewClock())
	}
}
