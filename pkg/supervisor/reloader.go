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
// Package supervisor implements the reloader loop: the coordination
// between the long-lived parent, the short-lived worker, the control
// pipe between them, OS signals, and the file-change stream.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reloaderd/reloaderd/internal/procgroup"
	"github.com/reloaderd/reloaderd/pkg/ipc"
	"github.com/reloaderd/reloaderd/pkg/monitor"
)

// result is the per-generation outcome the spec calls WorkerResult.
type result int

const (
	resultWait result = iota
	resultReload
	resultExit
)

// ErrSupervisorExit is returned by Run when the loop stopped because of
// SIGINT, SIGTERM, or a fatal control-pipe failure. Callers translate this
// into an os.Exit(1), matching the shell reporting failure on interrupt.
var ErrSupervisorExit = errors.New("supervisor: reloader exited")

// Reloader is the supervisor event loop (component F). It is a
// single-threaded state machine driven by one self-pipe read descriptor,
// split into an outer EXIT/WAIT/RELOAD loop and a per-generation dispatch
// split into an explicit per-generation dispatch matching the reload
// protocol: a worker is spawned, run until it should stop or restart, torn
// down, and the cycle repeats.
type Reloader struct {
	cfg Config
	log logrus.FieldLogger

	proxy   *monitor.Proxy
	backend monitor.Backend

	selfRead, selfWrite *os.File
	events              chan signalCode
}

// NewReloader constructs a Reloader. Call Run to start the supervisor
// loop; Run blocks until the loop decides to exit.
func NewReloader(cfg Config) *Reloader {
	return &Reloader{cfg: cfg}
}

// workerEvent is one item drained from a worker's control pipe: either a
// packet, or the done sentinel observed when the pipe's reader goroutine
// sees EOF (clean or truncated, per ipc.Pipe's own policy).
type workerEvent struct {
	pkt  ipc.Packet
	done bool
}

// Run validates cfg, wires the self-pipe, signal forwarding, and file
// monitor, then runs generations until a result of EXIT propagates out of
// the outer loop.
func (r *Reloader) Run() error {
	if err := r.cfg.Validate(); err != nil {
		return err
	}
	r.log = r.cfg.Log.WithField("component", "reloader")

	var err error
	r.selfRead, r.selfWrite, err = os.Pipe()
	if err != nil {
		return fmt.Errorf("supervisor: creating self-pipe: %w", err)
	}
	defer func() {
		_ = r.selfWrite.Close()
		_ = r.selfRead.Close()
	}()

	stopSignals := installSignalForwarding(r.selfWrite)
	defer stopSignals()

	r.events = make(chan signalCode, 64)
	go r.pumpSelfPipe()

	// proxy is captured by the callback closure before it exists; by the
	// time the backend actually invokes the callback (after Start, well
	// after this function returns past setup) proxy is assigned. This
	// breaks the otherwise circular backend-needs-callback,
	// proxy-needs-backend construction order.
	var proxy *monitor.Proxy
	backend, err := r.cfg.MonitorFactory(func(path string) {
		proxy.Callback()(path)
	}, r.cfg.ReloadInterval, r.log)
	if err != nil {
		return fmt.Errorf("supervisor: constructing file monitor backend: %w", err)
	}
	proxy, err = monitor.NewProxy(backend, r.cfg.IgnorePatterns, func() {
		_, _ = r.selfWrite.Write([]byte{byte(sigFileChanged)})
	}, r.log)
	if err != nil {
		return fmt.Errorf("supervisor: constructing file monitor proxy: %w", err)
	}
	r.proxy = proxy
	r.backend = backend

	for _, pat := range r.cfg.WatchPaths {
		r.proxy.AddPath(pat)
	}
	if err := r.proxy.Start(); err != nil {
		return fmt.Errorf("supervisor: starting file monitor: %w", err)
	}
	defer func() {
		r.proxy.Stop()
		r.proxy.Join()
	}()

	group, err := procgroup.New()
	if err != nil {
		r.log.Warnf("supervisor: process group tracking unavailable: %v", err)
		group = nil
	} else {
		defer group.Close()
	}

	generation := 0
	for {
		generation++
		r.proxy.ClearChanges()

		start := time.Now()
		w := NewWorker(fmt.Sprintf("worker-%d", generation), r.cfg.Spec, r.log)
		if group != nil {
			w.SetGroup(group)
		}
		if err := w.Spawn(); err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}

		res, softKillOK := r.runGeneration(w)
		exitCode := r.terminateGeneration(w, softKillOK)
		r.log.WithFields(logrus.Fields{
			"generation": generation,
			"exit_code":  exitCode,
		}).Debug("supervisor: generation ended")

		switch res {
		case resultExit:
			return ErrSupervisorExit
		case resultWait:
			if !r.waitForChanges() {
				return ErrSupervisorExit
			}
		case resultReload:
			if remaining := r.cfg.ReloadInterval - time.Since(start); remaining > 0 {
				time.Sleep(remaining)
			}
		}
	}
}

// pumpSelfPipe is the single read descriptor the whole loop blocks on, in
// spirit: it turns raw self-pipe bytes into signalCode values on a
// channel, for the lifetime of the Reloader.
func (r *Reloader) pumpSelfPipe() {
	defer close(r.events)
	for {
		var b [1]byte
		n, err := r.selfRead.Read(b[:])
		if n == 0 || err != nil {
			return
		}
		r.events <- signalCode(b[0])
	}
}

// forwardPackets drains pipe.Incoming() into out, waking the generation
// loop with a sigWorkerCommand byte for every item so the self-pipe stays
// the single thing runGeneration blocks on. The done sentinel is forwarded
// once, when the pipe's own reader goroutine has observed EOF.
func (r *Reloader) forwardPackets(pipe *ipc.Pipe, out chan<- workerEvent, done chan<- struct{}) {
	defer close(done)
	for pkt := range pipe.Incoming() {
		out <- workerEvent{pkt: pkt}
		_, _ = r.selfWrite.Write([]byte{byte(sigWorkerCommand)})
	}
	out <- workerEvent{done: true}
	_, _ = r.selfWrite.Write([]byte{byte(sigWorkerCommand)})
}

// runGeneration implements the per-generation dispatch: drain queued
// worker packets before acting on any signal, then act on exactly one
// signal, repeating until a terminal result is decided. softKillOK is
// false only when SIGINT already broadcast to the whole process group,
// since forwarding a soft-kill on top of that would deliver the signal to
// the worker twice.
func (r *Reloader) runGeneration(w *Worker) (res result, softKillOK bool) {
	res = resultWait
	softKillOK = true

	packets := make(chan workerEvent, 256)
	fwDone := make(chan struct{})
	go r.forwardPackets(w.Pipe(), packets, fwDone)

loop:
	for {
		for draining := true; draining; {
			select {
			case ev := <-packets:
				switch {
				case ev.done:
					// Transient pipe failure (taxonomy item 2): give the
					// worker one reload interval's grace before treating
					// a dead control channel as stuck.
					if w.IsAlive() {
						time.Sleep(r.cfg.ReloadInterval)
						if w.IsAlive() {
							res = resultReload
							break loop
						}
					}
					// The worker has exited: end the generation with
					// the default result (WAIT).
					break loop
				case ev.pkt.IsReload():
					res = resultReload
					break loop
				default:
					if paths, ok := ev.pkt.IsWatchFiles(); ok {
						for _, p := range paths {
							r.proxy.AddPath(p)
						}
					}
				}
			default:
				draining = false
			}
		}

		code, ok := <-r.events
		if !ok {
			res = resultExit
			break loop
		}
		switch code {
		case sigFileChanged:
			if changed, _ := r.proxy.HasChanged(); changed {
				res = resultReload
				break loop
			}
		case sigHUP:
			r.log.Info("Received SIGHUP")
			res = resultReload
			break loop
		case sigInt:
			res = resultExit
			softKillOK = false
			break loop
		case sigTERM:
			res = resultExit
			break loop
		case sigCHLD:
			if !w.IsAlive() {
				break loop
			}
		case sigWorkerCommand:
			// Nothing to do here directly; the next iteration's drain
			// picks up whatever forwardPackets just queued.
		}
	}

	<-fwDone
	return res, softKillOK
}

// terminateGeneration tears down w after runGeneration has decided a
// result, applying the shutdown interval and soft/hard kill escalation,
// and always joins before returning so the exit code is available.
func (r *Reloader) terminateGeneration(w *Worker, softKillOK bool) int {
	if w.IsAlive() {
		if softKillOK {
			if err := w.Kill(true); err != nil {
				r.log.Warnf("supervisor: soft kill failed: %v", err)
			}
			if _, ok := w.Wait(r.cfg.ShutdownInterval); !ok {
				_ = w.Kill(false)
			}
		} else {
			_ = w.Kill(false)
		}
	}
	w.Join()
	return w.ExitCode()
}

// waitForChanges blocks the outer loop in the WAIT sub-state: the worker
// exited on its own (cleanly or not) and no generation restarts until a
// file change or SIGHUP resumes normal scheduling. No worker and no
// control pipe exist in this state, so no explicit reload request can
// arrive. It returns false if an exit signal arrived instead, so Run can
// stop the supervisor.
//
// An earlier design spawned a trivial child solely to keep an
// interactive terminal's stdin drained; reloaderd workers never hold
// stdin open across generations the same way; so there is nothing
// analogous to drain here, and this simply blocks on the event stream.
func (r *Reloader) waitForChanges() bool {
	r.log.Info("supervisor: worker exited, waiting for a change before restarting")
	for {
		code, ok := <-r.events
		if !ok {
			return false
		}
		switch code {
		case sigFileChanged:
			if changed, _ := r.proxy.HasChanged(); changed {
				return true
			}
		case sigHUP:
			r.log.Info("Received SIGHUP")
			return true
		case sigInt, sigTERM:
			return false
		}
	}
}
