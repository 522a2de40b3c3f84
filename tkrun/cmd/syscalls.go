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

package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
	"gvisor.dev/tkernel/pkg/sentry/syscalls/rv64"
)

// Syscalls implements subcommands.Command for the "syscalls" command.
type Syscalls struct {
	output string
}

// SyscallDoc represents a single item of syscall documentation.
type SyscallDoc struct {
	Name   string  `json:"name"`
	Number uintptr `json:"number"`

	Support string `json:"support"`
	Note    string `json:"note,omitempty"`
}

type outputFunc func(io.Writer, []SyscallDoc) error

// A map of output type names to output functions.
var outputMap = map[string]outputFunc{
	"table": outputTable,
	"json":  outputJSON,
	"csv":   outputCSV,
}

// Name implements subcommands.Command.Name.
func (*Syscalls) Name() string {
	return "syscalls"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Syscalls) Synopsis() string {
	return "Print compatibility information for syscalls."
}

// Usage implements subcommands.Command.Usage.
func (*Syscalls) Usage() string {
	return `syscalls [options] - Print compatibility information for syscalls.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Syscalls) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.output, "o", "table", "Output format (table, csv, json).")
}

// Execute implements subcommands.Command.Execute.
func (s *Syscalls) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	out, ok := outputMap[s.output]
	if !ok {
		Fatalf("Unsupported output format %q", s.output)
	}
	if err := out(os.Stdout, syscallDocs(rv64.Table)); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// syscallDocs returns the documentation of every syscall in t, ordered by
// number.
func syscallDocs(t *kernel.SyscallTable) []SyscallDoc {
	var docs []SyscallDoc
	for _, num := range t.Numbers() {
		sc := t.Table[num]
		docs = append(docs, SyscallDoc{
			Name:    sc.Name,
			Number:  num,
			Support: sc.SupportLevel.String(),
			Note:    sc.Note,
		})
	}
	return docs
}

// outputTable outputs the syscall info in tabular format.
func outputTable(w io.Writer, docs []SyscallDoc) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	// Write the header
	if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", "NUM", "NAME", "SUPPORT", "NOTE"); err != nil {
		return err
	}

	// Write each syscall entry
	for _, sc := range docs {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			strconv.FormatUint(uint64(sc.Number), 10),
			sc.Name,
			sc.Support,
			sc.Note,
		)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

// outputJSON outputs the syscall info in JSON format.
func outputJSON(w io.Writer, docs []SyscallDoc) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(docs)
}

// outputCSV outputs the syscall info in CSV format.
func outputCSV(w io.Writer, docs []SyscallDoc) error {
	csvWriter := csv.NewWriter(w)

	// Write the header
	if err := csvWriter.Write([]string{"Num", "Name", "Support", "Note"}); err != nil {
		return err
	}

	// Write each syscall entry
	for _, sc := range docs {
		err := csvWriter.Write([]string{
			strconv.FormatUint(uint64(sc.Number), 10),
			sc.Name,
			sc.Support,
			sc.Note,
		})
		if err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
