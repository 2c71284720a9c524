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
//go:build windows

package supervisor

import (
	"os"
	"syscall"

	"golang.org/x/sys/windows"
	"golang.org/x/term"
)

// detachAttr starts the worker in a new process group, the Windows
// analogue of Setpgid: CREATE_NEW_PROCESS_GROUP lets the supervisor send
// a CTRL_BREAK_EVENT to just the worker's group rather than its own.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

// softKill sends CTRL_BREAK_EVENT to the worker's process group, the
// closest Windows equivalent of a graceful SIGTERM.
func softKill(p *os.Process) error {
	return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(p.Pid))
}

// hardKill unconditionally terminates the worker process itself; any
// grandchildren it spawned are reaped when the supervisor's Job Object
// closes at shutdown (internal/procgroup), not on every individual kill.
func hardKill(p *os.Process) error {
	return p.Kill()
}

// snapshotTerminal has no Windows line-discipline analogue worth
// preserving across a child's lifetime (Windows consoles do not have the
// same raw/cooked mode ownership model as a Unix tty); this is documented
// as intentionally inapplicable rather than silently stubbed.
func snapshotTerminal() *term.State { return nil }

func restoreTerminal(*term.State) error { return nil }
