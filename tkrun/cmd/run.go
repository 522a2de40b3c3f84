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
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/sentry/kernel"
	"gvisor.dev/tkernel/pkg/sentry/pgalloc"
	"gvisor.dev/tkernel/pkg/sentry/syscalls/rv64"
	"gvisor.dev/tkernel/pkg/sentry/usage"
	"gvisor.dev/tkernel/tkrun/config"
	"gvisor.dev/tkernel/tkrun/scenario"
)

// Run implements subcommands.Command for the "run" command.
type Run struct {
	// parallel is the maximum number of scenarios running at once.
	parallel int
}

// Name implements subcommands.Command.Name.
func (*Run) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Run) Synopsis() string {
	return "run scenarios, each on its own kernel"
}

// Usage implements subcommands.Command.Usage.
func (*Run) Usage() string {
	return `run [flags] <scenario.yaml>... - run scenarios, each on its own kernel.

Every scenario gets a fresh kernel with --frames physical frames, of which
--identity-frames (after frame 0) are kept for identity-mapped areas. Scenarios
run concurrently. The exit status is 1 if any task missed an expectation.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Run) SetFlags(f *flag.FlagSet) {
	f.IntVar(&r.parallel, "parallel", runtime.GOMAXPROCS(0), "maximum number of scenarios to run at once.")
}

// Execute implements subcommands.Command.Execute.
func (r *Run) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if r.parallel < 1 {
		Fatalf("--parallel must be at least 1, got %d", r.parallel)
	}
	conf := args[0].(*config.Config)

	var scenarios []*scenario.Scenario
	for _, path := range f.Args() {
		s, err := scenario.Load(path)
		if err != nil {
			Fatalf("error loading scenario: %v", err)
		}
		scenarios = append(scenarios, s)
	}

	reports, err := runScenarios(ctx, conf, scenarios, r.parallel)
	if err != nil {
		Fatalf("%v", err)
	}

	failed := false
	for _, rep := range reports {
		if err := rep.write(os.Stdout); err != nil {
			Fatalf("Error writing output: %v", err)
		}
		failed = failed || rep.failed()
	}
	if failed {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// runScenarios runs every scenario and returns their reports in the same
// order. At most parallel scenarios run at once.
func runScenarios(ctx context.Context, conf *config.Config, scenarios []*scenario.Scenario, parallel int) ([]*report, error) {
	reports := make([]*report, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, s := range scenarios {
		g.Go(func() error {
			rep, err := runScenario(ctx, conf, s)
			if err != nil {
				return fmt.Errorf("scenario %q: %w", s.Name, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// runScenario runs s on a new kernel until all of its tasks have exited.
func runScenario(ctx context.Context, conf *config.Config, s *scenario.Scenario) (*report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mf, err := pgalloc.NewMemoryFile(pgalloc.MemoryFileOpts{
		Frames:   conf.Frames,
		Reserved: conf.IdentityFrames,
	})
	if err != nil {
		return nil, fmt.Errorf("creating memory file: %w", err)
	}
	defer func() {
		if err := mf.Release(); err != nil {
			log.Warningf("Releasing memory of scenario %q: %v", s.Name, err)
		}
	}()

	rep := &report{name: s.Name, table: rv64.Table}
	k, err := kernel.New(kernel.Config{
		MemoryFile:   mf,
		SyscallTable: rv64.Table,
		Clock:        conf.NewClock(),
		Stdout:       &rep.stdout,
		Strace:       conf.Strace,
	})
	if err != nil {
		return nil, err
	}
	defer k.Release()

	if rep.tasks, err = s.Start(k); err != nil {
		return nil, err
	}
	log.Infof("Running scenario %q with %d tasks", s.Name, len(rep.tasks))
	if err := k.Run(); err != nil {
		return nil, err
	}

	rep.frames = mf.Frames()
	rep.free = mf.Available()
	rep.usage, _ = mf.Usage().Copy()
	if conf.Metrics {
		if err := k.Metrics().WritePrometheus(&rep.metrics); err != nil {
			return nil, fmt.Errorf("writing metrics: %w", err)
		}
	}
	log.Infof("Scenario %q done, %d of %d frames free", s.Name, rep.free, rep.frames)
	return rep, nil
}

// report is the outcome of one scenario.
type report struct {
	name  string
	table *kernel.SyscallTable
	tasks []*scenario.TaskRun

	// stdout holds everything the tasks wrote to fd 1.
	stdout bytes.Buffer

	// frames, free and usage describe physical memory once every task has
	// exited.
	frames uint64
	free   uint64
	usage  usage.MemoryStats

	// metrics is the kernel's metrics in the Prometheus text format, if
	// requested.
	metrics bytes.Buffer
}

func (r *report) failed() bool {
	for _, tr := range r.tasks {
		if len(tr.Failures()) > 0 {
			return true
		}
	}
	return false
}

// syscallSummary lists the syscalls made by t, by name, in number order.
func (r *report) syscallSummary(t *kernel.Task) string {
	var calls []string
	for sysno, n := range t.SyscallCounts() {
		if n > 0 {
			calls = append(calls, fmt.Sprintf("%s=%d", r.table.LookupName(uintptr(sysno)), n))
		}
	}
	if len(calls) == 0 {
		return "-"
	}
	return strings.Join(calls, ",")
}

func (r *report) write(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "== %s ==\n", r.name); err != nil {
		return err
	}
	if r.stdout.Len() > 0 {
		if _, err := fmt.Fprintf(w, "stdout:\n%s", r.stdout.String()); err != nil {
			return err
		}
		if !bytes.HasSuffix(r.stdout.Bytes(), []byte("\n")) {
			fmt.Fprintln(w)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", "TASK", "STATUS", "EXIT", "TIME(ms)", "SYSCALLS", "RESULT")
	for _, tr := range r.tasks {
		t := tr.Task
		exit := "-"
		if code, ok := t.ExitCode(); ok {
			exit = fmt.Sprint(code)
		}
		result := "ok"
		if len(tr.Failures()) > 0 {
			result = "FAIL"
		}
		fmt.Fprintf(tw, "%v\t%v\t%s\t%d\t%s\t%s\n", t, t.Status(), exit, t.RunMillis(), r.syscallSummary(t), result)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, tr := range r.tasks {
		for _, f := range tr.Failures() {
			if _, err := fmt.Fprintf(w, "%v: %s\n", tr.Task, f); err != nil {
				return err
			}
		}
	}

	var kinds []string
	for _, kind := range usage.Kinds() {
		kinds = append(kinds, fmt.Sprintf("%v=%d", kind, r.usage.Get(kind)))
	}
	if _, err := fmt.Fprintf(w, "memory: %d frames, %d free, in use: %s\n", r.frames, r.free, strings.Join(kinds, " ")); err != nil {
		return err
	}
	if r.metrics.Len() > 0 {
		if _, err := w.Write(r.metrics.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
