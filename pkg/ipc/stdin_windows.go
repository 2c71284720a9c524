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

package ipc

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// DupStdin duplicates the process's current stdin handle with
// DUPLICATE_SAME_ACCESS so it can be passed across to a spawned worker
// process, which Windows requires explicitly for handle inheritance.
func DupStdin() (*os.File, error) {
	var dup windows.Handle
	self := windows.CurrentProcess()
	src := windows.Handle(os.Stdin.Fd())
	if err := windows.DuplicateHandle(self, src, self, &dup, 0, true, windows.DUPLICATE_SAME_ACCESS); err != nil {
		return nil, fmt.Errorf("ipc: duplicating stdin handle: %w", err)
	}
	return os.NewFile(uintptr(dup), "reloaderd-stdin"), nil
}

// InstallStdin replaces the process's stdin with f. Windows has no dup2
// over a fixed low-numbered descriptor; Go's runtime resolves os.Stdin by
// value, so the worker entry point must read from the returned file
// directly rather than relying on fd 0 renumbering.
func InstallStdin(f *os.File) error {
	os.Stdin = f
	return nil
}
