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
	"os/signal"
	"syscall"
)

// installSignalForwarding starts a goroutine that translates the signals
// the reloader cares about into single-byte writes on w. The signal
// handler itself (inside the Go runtime's signal delivery) does no more
// than hand the value to this channel; only a plain write happens here,
// handlers never touch shared state directly; they only write a byte.
func installSignalForwarding(w *os.File) (stop func()) {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGCHLD)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig, ok := <-ch:
				if !ok {
					return
				}
				var code signalCode
				switch sig {
				case syscall.SIGINT:
					code = sigInt
				case syscall.SIGHUP:
					code = sigHUP
				case syscall.SIGTERM:
					code = sigTERM
				case syscall.SIGCHLD:
					code = sigCHLD
				default:
					continue
				}
				_, _ = w.Write([]byte{byte(code)})
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}
