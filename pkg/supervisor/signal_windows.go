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
	"os/signal"

	"golang.org/x/sys/windows"
)

// installSignalForwarding mirrors signal_unix.go, but Windows has neither
// SIGHUP nor SIGCHLD: os/signal only ever delivers os.Interrupt on
// Windows, and graceful termination is requested through a console
// control handler instead of a real signal, since console
// control handlers enqueue the same bytes.
func installSignalForwarding(w *os.File) (stop func()) {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, os.Interrupt)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case _, ok := <-ch:
				if !ok {
					return
				}
				_, _ = w.Write([]byte{byte(sigInt)})
			case <-done:
				return
			}
		}
	}()

	handler := windows.HandlerRoutine(func(ctrlType uint32) uintptr {
		switch ctrlType {
		case windows.CTRL_C_EVENT:
			_, _ = w.Write([]byte{byte(sigInt)})
			return 1
		case windows.CTRL_BREAK_EVENT, windows.CTRL_CLOSE_EVENT, windows.CTRL_SHUTDOWN_EVENT:
			_, _ = w.Write([]byte{byte(sigTERM)})
			return 1
		}
		return 0
	})
	_ = windows.SetConsoleCtrlHandler(handler, true)

	return func() {
		signal.Stop(ch)
		close(done)
		_ = windows.SetConsoleCtrlHandler(handler, false)
	}
}
