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
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PollingBackend is the default file-monitor backend: a single goroutine
// wakes every interval, snapshots the path set, stats each path, and
// compares mtime against a per-path cache.
//
// Quirk kept intentionally: a change is
// detected purely on mtime. If a file's size changes but its mtime does
// not move (clock resolution, a tool that preserves timestamps on
// rewrite), PollingBackend will not notice. This is documented behavior,
// not a bug to fix.
type PollingBackend struct {
	callback func(path string)
	interval time.Duration
	log      logrus.FieldLogger

	mu    sync.Mutex
	paths map[string]time.Time

	stop chan struct{}
	done chan struct{}
}

// NewPollingBackend constructs a backend; it does not start polling until
// Start is called.
func NewPollingBackend(callback func(path string), interval time.Duration, log logrus.FieldLogger) *PollingBackend {
	if interval <= 0 {
		interval = time.Second
	}
	return &PollingBackend{
		callback: callback,
		interval: interval,
		log:      log,
		paths:    make(map[string]time.Time),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// AddPath registers path for polling. A path missing from disk at first
// observation is recorded with the zero mtime, so its eventual appearance
// is reported as a change.
func (b *PollingBackend) AddPath(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.paths[path]; ok {
		return nil
	}
	mtime, _ := statMtime(path)
	b.paths[path] = mtime
	return nil
}

// Start begins the polling goroutine. It never blocks.
func (b *PollingBackend) Start() error {
	go b.run()
	return nil
}

// Stop requests the polling goroutine to exit on its next wakeup.
func (b *PollingBackend) Stop() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
}

// Join blocks until the polling goroutine has exited.
func (b *PollingBackend) Join() {
	<-b.done
}

func (b *PollingBackend) run() {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.scanOnce()
		}
	}
}

func (b *PollingBackend) scanOnce() {
	b.mu.Lock()
	snapshot := make(map[string]time.Time, len(b.paths))
	for p, t := range b.paths {
		snapshot[p] = t
	}
	b.mu.Unlock()

	for path, cached := range snapshot {
		// Deletion or a stat failure yields the zero Time, which later
		// compares unequal to any real mtime once the file reappears.
		mtime, err := statMtime(path)
		if err != nil {
			mtime = time.Time{}
		}

		if !mtime.Equal(cached) {
			b.mu.Lock()
			b.paths[path] = mtime
			b.mu.Unlock()
			if b.log != nil {
				b.log.Debugf("monitor: %s mtime changed", path)
			}
			b.callback(path)
		}
	}
}

func statMtime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
