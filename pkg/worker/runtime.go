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
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reloaderd/reloaderd/pkg/ipc"
)

// Runtime is the child-side process: it owns the worker's half of the
// control pipe, the module scanner, and the entry-point invocation.
type Runtime struct {
	pipe  *ipc.Pipe
	log   logrus.FieldLogger
	proxy *Proxy

	scanInterval time.Duration
	filterVendor bool
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithScanInterval overrides the module scanner's default cadence.
func WithScanInterval(d time.Duration) Option { return func(r *Runtime) { r.scanInterval = d } }

// WithVendorFiltering toggles whether the scanner drops GOROOT/module-cache
// paths. Enabled by default.
func WithVendorFiltering(enabled bool) Option {
	return func(r *Runtime) { r.filterVendor = enabled }
}

// NewRuntime builds a Runtime around an already-activated child-side pipe.
func NewRuntime(pipe *ipc.Pipe, log logrus.FieldLogger, opts ...Option) *Runtime {
	r := &Runtime{pipe: pipe, log: log, filterVendor: true, scanInterval: 2 * time.Second}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the seven-step worker startup sequence from the spec and
// blocks until the entry point returns. A control-pipe break cancels the
// entry point's ctx; Run still waits for the entry point to return.
//
//  1. the parent end of the pipe was never opened in this process (it
//     inherited only the child-side descriptors), so there is nothing to
//     close here beyond what ActivateFromFDs already did.
//  2. stdin replacement, via stdinFile.
//  3. reload-oriented signals (SIGHUP) are ignored; the parent owns
//     reload decisions.
//  4. Go has no compiled-bytecode cache to race against, so this step is
//     inapplicable and intentionally dropped (see DESIGN.md).
//  5. the ReloaderProxy capability is installed.
//  6. the scanner starts.
//  7. the entry point is resolved and invoked.
func (r *Runtime) Run(spec Spec, stdinFile *os.File) error {
	if stdinFile != nil {
		if err := ipc.InstallStdin(stdinFile); err != nil {
			r.log.Warnf("worker: could not install inherited stdin: %v", err)
		}
	}

	signal.Ignore(syscall.SIGHUP)

	r.proxy = newProxy(r.pipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.watchForPipeBreak(cancel)

	scanner := NewScanner(r.scanInterval, r.filterVendor, func(paths []string) {
		if err := r.proxy.WatchFiles(paths); err != nil {
			r.log.Debugf("worker: could not report new files: %v", err)
		}
	}, r.log)
	scanner.Start()
	defer func() {
		scanner.Stop()
		scanner.Join()
	}()

	fn, err := Resolve(spec.EntryPoint)
	if err != nil {
		return err
	}

	if err := r.invoke(ctx, fn, spec.Args); err != nil {
		return fmt.Errorf("worker: entry point %q failed: %w", spec.EntryPoint, err)
	}
	return nil
}

// invoke calls fn and recovers any panic right at this boundary. A
// deferred recover runs before the panicking goroutine's stack is
// unwound past this point, so reportCrashSite can still walk frames
// belonging to fn and everything it called; capturing the stack after
// fn has already returned an ordinary error would only ever see invoke's
// own frame. A plain error return carries no stack to recover, so only
// the panic path can identify the real failure site.
func (r *Runtime) invoke(ctx context.Context, fn EntryFunc, args []string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.reportCrashSite()
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, args)
}

// Attach installs this process as an active worker without resolving or
// invoking a registered entry point: it activates the ReloaderProxy
// capability and starts the module scanner, then returns control to the
// caller immediately. This is the direct-embedding counterpart to Run,
// for callers who want their own code to keep executing inline after
// attaching rather than handing control to a registered EntryFunc — the
// Go analogue of returning inline in the child process instead of only
// ever invoking a named callback.
//
// Unlike Run, Attach does not cancel anything when the control pipe
// breaks; the caller owns its own lifecycle, and relies on the supervisor
// terminating the process the ordinary way (signal, then force-kill) like
// it would for any other worker.
func Attach(pipe *ipc.Pipe, log logrus.FieldLogger, opts ...Option) *Proxy {
	r := NewRuntime(pipe, log, opts...)
	proxy := newProxy(pipe)

	go func() {
		for range pipe.Incoming() {
			// Parent -> child packets are not part of the protocol today;
			// draining only exists to observe EOF without filling the
			// channel.
		}
	}()

	scanner := NewScanner(r.scanInterval, r.filterVendor, func(paths []string) {
		if err := proxy.WatchFiles(paths); err != nil {
			log.Debugf("worker: could not report new files: %v", err)
		}
	}, log)
	scanner.Start()

	return proxy
}

// watchForPipeBreak cancels ctx as soon as the control pipe observes EOF,
// so the entry point can notice via ctx.Done() instead of being killed
// out from under itself, rather than relying on an external interrupt to
// the main goroutine.
func (r *Runtime) watchForPipeBreak(cancel context.CancelFunc) {
	for range r.pipe.Incoming() {
		// The worker has nothing useful to do with packets flowing
		// parent -> child today; draining keeps the channel from
		// filling while still observing EOF below.
	}
	cancel()
}

// reportCrashSite feeds the file of every frame on the panicking
// goroutine's stack through the proxy, so the parent learns about files
// that were only reached along the failure path and grows the watched
// set accordingly. Must be called from within the deferred recover in
// invoke: the panicking goroutine's stack is still intact at that point,
// including every frame inside the entry point and whatever it called,
// which is the whole reason recovery happens there instead of after fn
// has already returned.
func (r *Runtime) reportCrashSite() {
	buf := make([]uintptr, 64)
	n := runtime.Callers(1, buf)
	frames := runtime.CallersFrames(buf[:n])
	var files []string
	seen := make(map[string]struct{})
	for {
		frame, more := frames.Next()
		if frame.File != "" && !isVendoredPath(frame.File) {
			if _, ok := seen[frame.File]; !ok {
				seen[frame.File] = struct{}{}
				files = append(files, frame.File)
			}
		}
		if !more {
			break
		}
	}
	if len(files) > 0 && r.proxy != nil {
		_ = r.proxy.WatchFiles(files)
	}
}
