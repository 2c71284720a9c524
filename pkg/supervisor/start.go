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
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/reloaderd/reloaderd/pkg/ipc"
	"github.com/reloaderd/reloaderd/pkg/worker"
)

// Start is the single entry point embedders call from both sides of the
// fork: called in the parent it
// spawns the first generation and blocks for the supervisor's whole
// lifetime; called inside a process Worker.Spawn re-exec'd (detected via
// IsWorkerProcess), it attaches to the inherited control pipe and returns
// a Proxy immediately so the caller's own code keeps running.
//
// ctx is reserved for future cooperative shutdown of the parent-side
// loop; today cfg's own signal handling (SIGINT/SIGTERM) is what actually
// stops Run.
func Start(ctx context.Context, cfg Config) (*worker.Proxy, error) {
	_ = ctx

	if IsWorkerProcess() {
		log := cfg.Log
		if log == nil {
			log = logrus.StandardLogger()
		}
		pipe, stdinFile, err := activateWorkerPipe(log)
		if err != nil {
			return nil, fmt.Errorf("supervisor: %w", err)
		}
		if stdinFile != nil {
			if err := ipc.InstallStdin(stdinFile); err != nil {
				log.Warnf("supervisor: could not install inherited stdin: %v", err)
			}
		}
		return worker.Attach(pipe, log), nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return nil, NewReloader(cfg).Run()
}

// IsActive reports whether this process is running under a reloaderd
// supervisor, as a worker.
func IsActive() bool { return worker.IsActive() }

// GetProxy returns the process-local ReloaderProxy, or an error if this
// process is not a reloaderd worker.
func GetProxy() (*worker.Proxy, error) { return worker.GetProxy() }

// RunOnce spawns a single worker generation, waits for it to exit, and
// returns its exit code without ever entering the reload loop. This is
// Useful for embedding a single supervised run inside a tool that does
// not want a persistent dev loop.
func RunOnce(cfg Config) (exitCode int, err error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	w := NewWorker("worker-1", cfg.Spec, cfg.Log)
	if err := w.Spawn(); err != nil {
		return 0, fmt.Errorf("supervisor: %w", err)
	}
	w.Join()
	return w.ExitCode(), nil
}
