/*
Copyright 2024 reloaderd authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/reloaderd/reloaderd/internal/procgroup"
	"github.com/reloaderd/reloaderd/pkg/ipc"
	"github.com/reloaderd/reloaderd/pkg/worker"
)

// workerReexecEnv tells a re-exec'd copy of this binary that it should run
// as a worker instead of a supervisor, carrying the pipe's inherited
// descriptor indices and the entry-point name across exec.
const (
	workerReexecEnv  = "RELOADERD_WORKER"
	workerEntryEnv   = "RELOADERD_ENTRY"
	workerPipeFDEnv  = "RELOADERD_PIPE_FDS" // "readFD,writeFD" relative to ExtraFiles
	workerStdinFDEnv = "RELOADERD_STDIN_FD"
)

// Worker is the parent-side handle on one worker generation: the spawned
// process, its control pipe, and enough bookkeeping to report liveness,
// kill it, and collect its exit code exactly once. Shaped after the
// teacher's own Supervisor struct (Name, cmd *exec.Cmd, mutex
// sync.Mutex, log logrus.FieldLogger), generalized to a typed Spec
// instead of a bare binary path.
type Worker struct {
	Name string
	spec worker.Spec

	log   logrus.FieldLogger
	group procgroup.Group

	mu        sync.Mutex
	cmd       *exec.Cmd
	pipe      *ipc.Pipe
	exitCode  *int
	termState *term.State

	waitOnce sync.Once
	waitDone chan struct{}
}

// NewWorker constructs a handle. It does not spawn anything yet.
func NewWorker(name string, spec worker.Spec, log logrus.FieldLogger) *Worker {
	return &Worker{Name: name, spec: spec, log: log.WithField("component", name), waitDone: make(chan struct{})}
}

// SetGroup attaches a process-group membership tracker; Spawn registers
// the worker's pid with it once the process starts. Must be called before
// Spawn.
func (w *Worker) SetGroup(g procgroup.Group) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.group = g
}

// Spawn creates the control pipe, execs this same binary in worker mode,
// and activates the parent side of the pipe. It is the Go translation of
// the usual spawn protocol: create the pipe first, mark both ends
// inheritable, fork/spawn, close the child-side handle in the parent,
// activate the parent side.
func (w *Worker) Spawn() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	pipe, err := ipc.NewPipe(w.log)
	if err != nil {
		return err
	}

	stdinFile, err := ipc.DupStdin()
	if err != nil {
		return fmt.Errorf("supervisor: duplicating stdin for worker: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("supervisor: resolving own executable: %w", err)
	}

	cmd := exec.Command(exe, w.spec.Args...)
	cmd.Env = append(os.Environ(),
		workerReexecEnv+"=1",
		workerEntryEnv+"="+w.spec.EntryPoint,
		workerPipeFDEnv+"=3,4", // first two ExtraFiles entries
		workerStdinFDEnv+"=5",
	)
	for k, v := range w.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdin = nil
	cmd.ExtraFiles = append(pipe.ChildFiles(), stdinFile)
	cmd.SysProcAttr = detachAttr()

	cmd.Stdout = &logWriter{log: w.log.WithField("stream", "stdout")}
	cmd.Stderr = &logWriter{log: w.log.WithField("stream", "stderr")}

	w.termState = snapshotTerminal()

	if err := cmd.Start(); err != nil {
		stdinFile.Close()
		return fmt.Errorf("supervisor: starting worker: %w", err)
	}

	// The parent's copies of the child-side descriptors must close so
	// the only remaining reference is the one inherited by the child;
	// otherwise the parent's own read end never sees EOF when the
	// child exits, since the parent would still hold a writable copy
	// of its own write end open via ExtraFiles.
	for _, f := range pipe.ChildFiles() {
		f.Close()
	}
	stdinFile.Close()

	pipe.Activate(true)

	w.cmd = cmd
	w.pipe = pipe

	if w.group != nil {
		_ = w.group.AddChild(cmd.Process.Pid)
	}

	w.log.Info("Started successfully, go nuts")
	return nil
}

// Pid returns the worker's process id, or 0 if it has not been spawned.
func (w *Worker) Pid() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cmd == nil || w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

// Pipe returns the activated parent-side control pipe.
func (w *Worker) Pipe() *ipc.Pipe { return w.pipe }

// IsAlive reports whether the worker process is still running. It starts
// the shared waiter (startWait) if it is not already running, and reports
// the worker alive until that waiter has reaped the process.
func (w *Worker) IsAlive() bool {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	select {
	case <-w.startWait():
		return false
	default:
		return true
	}
}

// Kill sends a termination request. soft asks for a graceful shutdown
// (SIGTERM-equivalent); otherwise it force-kills immediately.
func (w *Worker) Kill(soft bool) error {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if soft {
		return softKill(cmd.Process)
	}
	return hardKill(cmd.Process)
}

// startWait launches the single goroutine that ever calls cmd.Wait() for
// this worker, regardless of how many times Wait or Join are called, and
// returns a channel that closes once it has returned. cmd.Wait() is not
// safe to call concurrently from two goroutines, so Wait and Join must
// share this one waiter instead of each calling join() on its own.
func (w *Worker) startWait() <-chan struct{} {
	w.waitOnce.Do(func() {
		go func() {
			w.join()
			close(w.waitDone)
		}()
	})
	return w.waitDone
}

// Wait blocks until the worker exits or timeout elapses, whichever comes
// first. ok is false if the timeout elapsed with the worker still alive.
func (w *Worker) Wait(timeout time.Duration) (exitCode int, ok bool) {
	select {
	case <-w.startWait():
		return w.ExitCode(), true
	case <-time.After(timeout):
		return 0, false
	}
}

// join blocks until the OS reports the worker has exited, recording its
// exit code exactly once.
func (w *Worker) join() {
	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()
	if cmd == nil {
		return
	}

	err := cmd.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exitCode != nil {
		return
	}
	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}
	w.exitCode = &code
}

// Join blocks until the worker process has fully exited and its pipe's
// reader goroutine has observed EOF, then restores the terminal's
// line-discipline state captured at Spawn.
func (w *Worker) Join() {
	<-w.startWait()
	if w.pipe != nil {
		<-w.pipe.Done()
		w.pipe.Close()
	}
	if err := restoreTerminal(w.termState); err != nil && w.log != nil {
		w.log.Warnf("supervisor: could not restore terminal state: %v", err)
	}
}

// ExitCode returns the worker's recorded exit code. Only meaningful after
// Join or Wait has observed termination.
func (w *Worker) ExitCode() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.exitCode == nil {
		return 0
	}
	return *w.exitCode
}
