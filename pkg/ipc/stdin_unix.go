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

package ipc

import (
	"fmt"
	"os"
	"syscall"
)

// DupStdin duplicates the process's current stdin descriptor so it can be
// handed to a child across exec.Cmd.ExtraFiles. The returned file is
// marked inheritable by virtue of not having CLOEXEC set (Go's os.Pipe and
// dup calls default to that).
func DupStdin() (*os.File, error) {
	fd, err := syscall.Dup(int(os.Stdin.Fd()))
	if err != nil {
		return nil, fmt.Errorf("ipc: duplicating stdin: %w", err)
	}
	return os.NewFile(uintptr(fd), "reloaderd-stdin"), nil
}

// InstallStdin makes f the process's fd 0, so libraries that assume stdin
// is literally file descriptor 0 keep working inside the worker.
func InstallStdin(f *os.File) error {
	if err := syscall.Dup2(int(f.Fd()), int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("ipc: installing inherited stdin: %w", err)
	}
	return nil
}
