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
	"errors"
	"sync/atomic"

	"github.com/reloaderd/reloaderd/pkg/ipc"
)

// ErrNotInWorker is returned by GetProxy when called outside a worker
// process — the Go translation of an is_active()/get_reloader()-style
// pair failing loudly when there is no active reloader.
var ErrNotInWorker = errors.New("worker: not running inside a reloaderd worker")

// Proxy is the capability user code holds to talk back to the supervisor:
// announce newly touched files, or request an explicit reload. Both
// methods are transport-level sends on the control pipe — the worker
// never decides to restart itself, it only ever asks the supervisor to.
type Proxy struct {
	pipe *ipc.Pipe
}

var currentProxy atomic.Pointer[Proxy]

// newProxy is called once by Runtime.Run or Attach; it installs the process-local
// singleton that GetProxy reads.
func newProxy(pipe *ipc.Pipe) *Proxy {
	p := &Proxy{pipe: pipe}
	currentProxy.Store(p)
	return p
}

// GetProxy returns the process-local ReloaderProxy, or ErrNotInWorker if
// this process was not started as a reloaderd worker.
func GetProxy() (*Proxy, error) {
	p := currentProxy.Load()
	if p == nil {
		return nil, ErrNotInWorker
	}
	return p, nil
}

// IsActive reports whether this process is running under a reloaderd
// supervisor.
func IsActive() bool { return currentProxy.Load() != nil }

// WatchFiles announces paths to the supervisor so they join the watched
// set for every subsequent generation.
func (p *Proxy) WatchFiles(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return p.pipe.Send(ipc.NewWatchFiles(paths))
}

// TriggerReload asks the supervisor to start a new generation immediately,
// without waiting for a file change.
func (p *Proxy) TriggerReload() error {
	return p.pipe.Send(ipc.NewReload())
}
