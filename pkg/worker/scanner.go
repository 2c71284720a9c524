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
package worker

import (
	"go/build"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scanner periodically enumerates source files reachable from live
// goroutine stacks. A statically linked Go binary has no table of
// "imported modules" to walk, so Scanner instead snapshots every live
// goroutine's call stack (runtime.GoroutineProfile) and resolves each
// program counter back to a source file. A file becomes "watched" once
// some goroutine has actually executed code defined in it — the closest
// runtime-observable proxy to "imported" that a statically linked binary
// offers. Each cycle grows the watched set as new code paths (newly
// spawned goroutines, newly taken branches) bring new source files into
// scope.
type Scanner struct {
	log          logrus.FieldLogger
	interval     time.Duration
	onNewPaths   func(paths []string)
	filterVendor bool

	mu    sync.Mutex
	known map[string]struct{}

	stop chan struct{}
	done chan struct{}
}

// NewScanner builds a scanner. onNewPaths is called with the batch of
// paths newly discovered in a single cycle, batched into a single call
// per cycle rather than one call per file.
func NewScanner(interval time.Duration, filterVendor bool, onNewPaths func(paths []string), log logrus.FieldLogger) *Scanner {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Scanner{
		log:          log,
		interval:     interval,
		onNewPaths:   onNewPaths,
		filterVendor: filterVendor,
		known:        make(map[string]struct{}),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs the scan loop in a background goroutine.
func (s *Scanner) Start() {
	go s.run()
}

// Stop requests the scan loop to exit on its next wakeup.
func (s *Scanner) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

// Join blocks until the scan loop has exited.
func (s *Scanner) Join() { <-s.done }

func (s *Scanner) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scanOnce() // don't wait a full interval before the first report
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.scanOnce()
		}
	}
}

func (s *Scanner) scanOnce() {
	files := activeSourceFiles()

	s.mu.Lock()
	var fresh []string
	for _, f := range files {
		if s.filterVendor && isVendoredPath(f) {
			continue
		}
		if _, seen := s.known[f]; seen {
			continue
		}
		s.known[f] = struct{}{}
		fresh = append(fresh, f)
	}
	s.mu.Unlock()

	if len(fresh) > 0 {
		if s.log != nil {
			s.log.Debugf("worker: scanner found %d new source file(s)", len(fresh))
		}
		s.onNewPaths(fresh)
	}
}

// activeSourceFiles snapshots every goroutine's stack and returns the
// distinct set of source files any frame belongs to. A profile buffer
// that turns out too small (goroutines were spawned meanwhile) is not an
// error: the snapshot is retried at once with a larger buffer.
func activeSourceFiles() []string {
	n := runtime.NumGoroutine() + 16
	for {
		records := make([]runtime.StackRecord, n)
		count, ok := runtime.GoroutineProfile(records)
		if ok {
			return filesFromRecords(records[:count])
		}
		n = count + 16
	}
}

func filesFromRecords(records []runtime.StackRecord) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, r := range records {
		frames := runtime.CallersFrames(trimZero(r.Stack()))
		for {
			frame, more := frames.Next()
			if frame.File != "" {
				if _, ok := seen[frame.File]; !ok {
					seen[frame.File] = struct{}{}
					files = append(files, frame.File)
				}
			}
			if !more {
				break
			}
		}
	}
	return files
}

func trimZero(pcs []uintptr) []uintptr {
	for i, pc := range pcs {
		if pc == 0 {
			return pcs[:i]
		}
	}
	return pcs
}

// isVendoredPath filters out files inside GOROOT or the module cache, the
// Go equivalent of an optional standard-library/vendor-path exclusion.
func isVendoredPath(path string) bool {
	if goroot := build.Default.GOROOT; goroot != "" && strings.HasPrefix(path, goroot) {
		return true
	}
	return strings.Contains(path, "/pkg/mod/") || strings.Contains(path, "/vendor/")
}
