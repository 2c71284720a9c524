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
//go:build !windows

package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/term"
)

// detachAttr returns the SysProcAttr that puts the worker in its own
// process group, so SIGINT delivered to the supervisor's terminal process
// group is not redelivered by the kernel straight to the worker a second
// time — the parent decides explicitly whether and how to forward it.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// softKill sends the graceful-termination signal to the worker's whole
// process group (the negative of its pid), so descendants that never
// detached from it are asked to exit too.
func softKill(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}

// hardKill sends the unconditional-termination signal to the worker's
// whole process group.
func hardKill(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}

// snapshotTerminal captures the current line-discipline state of stdin, if
// it is an interactive terminal. A nil state means there is nothing to
// restore.
func snapshotTerminal() *term.State {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil
	}
	state, err := term.GetState(int(os.Stdin.Fd()))
	if err != nil {
		return nil
	}
	return state
}

// restoreTerminal restores a previously captured state. A nil state
// means there was nothing to capture; a restore error is returned for
// the caller to log, since this function has no logger in scope.
func restoreTerminal(state *term.State) error {
	if state == nil {
		return nil
	}
	return term.Restore(int(os.Stdin.Fd()), state)
}
