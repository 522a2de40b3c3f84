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

// Package cli is the main entrypoint for tkrun.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/tkrun/cmd"
	"gvisor.dev/tkernel/tkrun/config"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}

	// Without --log, stderr only gets warnings unless --debug is set, so that
	// it stays readable next to the command's output.
	var logFile io.Writer = os.Stderr
	level := log.Warning
	if conf.LogFilename != "" {
		// O_APPEND so that consecutive runs share one log.
		f, err := os.OpenFile(conf.LogFilename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		logFile = f
		cmd.ErrorLogger = f
		level = log.Info
	}
	if conf.Debug {
		level = log.Debug
	}
	log.SetTarget(newEmitter(conf.LogFormat, logFile))
	log.SetLevel(level)

	const delimString = `**************** tkernel ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %d CPUs, %s, PID %d, PPID %d, UID %d, GID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid(), os.Getppid(), os.Getuid(), os.Getgid())
	log.Debugf("Page size: 0x%x (%d bytes)", os.Getpagesize(), os.Getpagesize())
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if subcmdCode == subcommands.ExitSuccess {
		log.Infof("Exiting with status: %v", subcmdCode)
	} else {
		log.Warningf("Failure to execute command, err: %v", subcmdCode)
	}
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by tkrun.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Run), "")
	cb(new(cmd.Syscalls), "")
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
