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
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strconv"

	"github.com/BurntSushi/toml"
	"gvisor.dev/tkernel/pkg/log"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	// Machine flags.
	flagSet.Uint64("frames", 1024, "number of 4KiB physical frames given to each kernel.")
	flagSet.Uint64("identity-frames", 0, "number of frames after frame 0 reserved for identity-mapped areas.")
	flagSet.Var(clockKindPtr(ClockMonotonic), "clock", "kernel clock: monotonic (host time since boot) or manual (frozen at zero).")

	// Debugging flags.
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.Bool("strace", false, "enable strace.")
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("metrics", false, "print kernel metrics in the Prometheus text format after each scenario.")

	flagSet.String("config", "", "TOML file with settings. Flags given on the command line take precedence.")
}

// NewFromFlags creates a new Config with values coming from command line flags
// and, if --config is set, from the named TOML file.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}

	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
	}

	if conf.ConfigFile != "" {
		if err := conf.loadFile(flagSet, conf.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// loadFile applies the settings in the TOML file at path. Keys are flag
// names. Settings whose flag was given on the command line are skipped.
func (c *Config) loadFile(flagSet *flag.FlagSet, path string) error {
	var settings map[string]any
	if _, err := toml.DecodeFile(path, &settings); err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}

	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) {
		explicit[f.Name] = true
	})

	for _, name := range slices.Sorted(maps.Keys(settings)) {
		if name == "config" {
			return fmt.Errorf("config file %q: %q cannot be set from a config file", path, name)
		}
		if explicit[name] {
			log.Debugf("Config file setting %q ignored, flag was set", name)
			continue
		}
		var value string
		switch v := settings[name].(type) {
		case string, bool, int64:
			value = fmt.Sprint(v)
		default:
			return fmt.Errorf("config file %q: unsupported value %v for %q", path, v, name)
		}
		if err := c.set(flagSet, name, value); err != nil {
			return fmt.Errorf("config file %q: %w", path, err)
		}
	}
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		flag := flagSet.Lookup(name)
		if flag == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == flag.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", flag.Name, val))
	}
	return rv
}

// Log logs every setting that has a flag.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok {
			log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
		}
	}
}

// Override writes a new value to a flag.
func (c *Config) Override(flagSet *flag.FlagSet, name string, value string) error {
	if err := c.set(flagSet, name, value); err != nil {
		return err
	}
	// Validates the config again to ensure it's left in a consistent state.
	return c.validate()
}

func (c *Config) set(flagSet *flag.FlagSet, name string, value string) error {
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		fieldName, ok := f.Tag.Lookup("flag")
		if !ok || fieldName != name {
			// Not a flag field, or flag name doesn't match.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			// Flag must exist if there is a field match above.
			panic(fmt.Sprintf("Flag %q not found", name))
		}

		// Use flag to convert the string value to the underlying flag type, using
		// the same rules as the command-line for consistency.
		if err := fl.Value.Set(value); err != nil {
			return fmt.Errorf("error setting flag %s=%q: %w", name, value, err)
		}
		x := reflect.ValueOf(fl.Value.(flag.Getter).Get())
		obj.Field(i).Set(x)
		return nil
	}
	return fmt.Errorf("flag %q not found. Cannot set it to %q", name, value)
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
