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
package monitor

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FSNotifyBackend is an OS-native file-monitor backend built on
// github.com/fsnotify/fsnotify, an OS-native notification library. It
// satisfies the same Backend contract as PollingBackend so the supervisor
// never has to know which one it is talking to.
//
// fsnotify watches directories, not individual files (matching its
// underlying inotify/kqueue/ReadDirectoryChangesW semantics), so AddPath
// watches the parent directory of path and filters delivered events down
// to the exact file the caller asked for.
type FSNotifyBackend struct {
	callback func(path string)
	log      logrus.FieldLogger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	wanted  map[string]struct{} // exact files the caller asked to watch
	watched map[string]struct{} // directories already added to watcher

	done chan struct{}
}

// NewFSNotifyBackend adapts fsnotify to the monitor.Factory signature so it
// can be registered and looked up like any other backend. interval is
// unused by fsnotify (event delivery is push-based) but kept in the
// signature so Factory stays uniform across backends.
func NewFSNotifyBackend(callback func(path string), _ time.Duration, log logrus.FieldLogger) (Backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("monitor: creating fsnotify watcher: %w", err)
	}
	return &FSNotifyBackend{
		callback: callback,
		log:      log,
		watcher:  w,
		wanted:   make(map[string]struct{}),
		watched:  make(map[string]struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (b *FSNotifyBackend) AddPath(path string) error {
	dir := filepath.Dir(path)

	b.mu.Lock()
	b.wanted[path] = struct{}{}
	_, alreadyWatched := b.watched[dir]
	if !alreadyWatched {
		b.watched[dir] = struct{}{}
	}
	b.mu.Unlock()

	if alreadyWatched {
		return nil
	}
	if err := b.watcher.Add(dir); err != nil {
		// Backend errors are logged and the path stays in the wanted
		// set; it is retried the next time AddPath is called for a
		// sibling file in the same directory.
		b.mu.Lock()
		delete(b.watched, dir)
		b.mu.Unlock()
		if b.log != nil {
			b.log.Warnf("monitor: fsnotify could not watch %s: %v", dir, err)
		}
		return fmt.Errorf("monitor: watching %s: %w", dir, err)
	}
	return nil
}

func (b *FSNotifyBackend) Start() error {
	go b.run()
	return nil
}

func (b *FSNotifyBackend) Stop() {
	b.watcher.Close()
}

func (b *FSNotifyBackend) Join() {
	<-b.done
}

func (b *FSNotifyBackend) run() {
	defer close(b.done)
	for {
		select {
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			b.mu.Lock()
			_, want := b.wanted[ev.Name]
			b.mu.Unlock()
			if want {
				b.callback(ev.Name)
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			if b.log != nil {
				b.log.Warnf("monitor: fsnotify error: %v", err)
			}
		}
	}
}
