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

package kernel

import (
	"errors"
	"runtime"

	"gvisor.dev/tkernel/pkg/abi/linux"
	"gvisor.dev/tkernel/pkg/log"
	"gvisor.dev/tkernel/pkg/sentry/ktime"
)

// Run schedules tasks round-robin until every task has exited.
//
// A task runs until it yields, exits or faults; there is no preemption. Tasks
// created by NewTask while Run executes join the back of the run queue.
func (k *Kernel) Run() error {
	k.mu.Lock()
	if k.running {
		k.mu.Unlock()
		return errors.New("kernel is already running")
	}
	k.running = true
	k.mu.Unlock()

	defer func() {
		k.mu.Lock()
		k.running = false
		k.mu.Unlock()
	}()

	for {
		t := k.dequeue()
		if t == nil {
			return nil
		}
		k.switchTo(t)
	}
}

// dequeue pops the next ready task, or returns nil if there is none.
func (k *Kernel) dequeue() *Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.runQueue) == 0 {
		return nil
	}
	t := k.runQueue[0]
	k.runQueue[0] = nil
	k.runQueue = k.runQueue[1:]
	return t
}

// enqueue appends t to the run queue.
func (k *Kernel) enqueue(t *Task) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.runQueue = append(k.runQueue, t)
}

// switchTo gives the processor to t and returns once t gives it back.
func (k *Kernel) switchTo(t *Task) {
	if !t.started {
		t.started = true
		t.firstRunMillis = ktime.NowMilliseconds(k.clock)
		log.Debugf("%v: first run at %dms", t, t.firstRunMillis)
		go t.run()
	}
	t.setStatus(linux.TaskRunning)
	t.wake <- struct{}{}
	<-k.sched
}

// run runs the task goroutine.
func (t *Task) run() {
	<-t.wake
	// The processor goes back to the scheduler however the goroutine ends,
	// including runtime.Goexit from exitAndStop.
	defer func() {
		t.k.sched <- struct{}{}
	}()
	code := t.prog(&UserContext{t: t})
	t.exit(code)
}

// yield gives up the processor and blocks until t is scheduled again.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) yield() {
	t.setStatus(linux.TaskReady)
	t.k.enqueue(t)
	t.k.sched <- struct{}{}
	<-t.wake
}

// exit terminates t. The address space is released immediately.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) exit(code int32) {
	t.exitCode = code
	t.exitMillis = ktime.NowMilliseconds(t.k.clock)
	t.mm.Release()
	t.setStatus(linux.TaskExited)
	t.k.taskExits.Increment()
	log.Infof("%v exited with code %d", t, code)
}

// exitAndStop terminates t and never returns to the caller.
//
// Preconditions: The caller must be running on the task goroutine.
func (t *Task) exitAndStop(code int32) {
	t.exit(code)
	runtime.Goexit()
}
