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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/reloaderd/reloaderd/pkg/ipc"
	"github.com/reloaderd/reloaderd/pkg/worker"
)

// IsWorkerProcess reports whether this process was re-exec'd by Spawn to
// run as a worker, rather than started directly as the supervisor.
func IsWorkerProcess() bool {
	return os.Getenv(workerReexecEnv) != ""
}

// RunWorker reconstructs the worker side of the control pipe and inherited
// stdin from the environment Spawn set, then runs the worker runtime to
// completion. Call this from main() when IsWorkerProcess is true, instead
// of calling Start/Run.
func RunWorker(log logrus.FieldLogger, args []string) error {
	pipe, stdinFile, err := activateWorkerPipe(log)
	if err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	entry := os.Getenv(workerEntryEnv)
	if entry == "" {
		return fmt.Errorf("supervisor: %s not set in worker process", workerEntryEnv)
	}

	rt := worker.NewRuntime(pipe, log)
	return rt.Run(worker.Spec{EntryPoint: entry, Args: args}, stdinFile)
}

// activateWorkerPipe rebuilds the child side of the control pipe, and the
// inherited stdin handle if one was passed, from the environment Spawn
// set. Shared by RunWorker (registry-driven entry points) and Start
// (direct embedding).
func activateWorkerPipe(log logrus.FieldLogger) (*ipc.Pipe, *os.File, error) {
	readFD, writeFD, err := parsePipeFDs(os.Getenv(workerPipeFDEnv))
	if err != nil {
		return nil, nil, err
	}
	pipe := ipc.ActivateFromFDs(readFD, writeFD, log)

	var stdinFile *os.File
	if raw := os.Getenv(workerStdinFDEnv); raw != "" {
		fd, err := strconv.Atoi(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid %s: %w", workerStdinFDEnv, err)
		}
		stdinFile = os.NewFile(uintptr(fd), "reloaderd-inherited-stdin")
	}
	return pipe, stdinFile, nil
}

func parsePipeFDs(raw string) (read, write uintptr, err error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed %s=%q", workerPipeFDEnv, raw)
	}
	r, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed %s=%q: %w", workerPipeFDEnv, raw, err)
	}
	w, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed %s=%q: %w", workerPipeFDEnv, raw, err)
	}
	return uintptr(r), uintptr(w), nil
}
