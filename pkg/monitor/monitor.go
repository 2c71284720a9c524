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
// Package monitor implements the file-monitor contract the supervisor
// consumes (pkg/supervisor never talks to a concrete backend directly) and
// the proxy that adapts a backend for concurrent, glob-aware use.
package monitor

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Backend is the minimal interface a file-change detector must satisfy.
// AddPath is idempotent and safe to call concurrently with event delivery.
// Start must not block; Stop requests termination; Join blocks until the
// backend has actually stopped. Backends may over-deliver duplicate
// events for one logical change but must never silently drop an event for
// a path currently in the path set.
type Backend interface {
	AddPath(path string) error
	Start() error
	Stop()
	Join()
}

// Factory constructs a Backend. callback is invoked with a single absolute
// path each time that file's content or mtime changes.
type Factory func(callback func(path string), interval time.Duration, log logrus.FieldLogger) (Backend, error)

// registry of named factories, the Go stand-in for resolving
// RELOADERD_DEFAULT_MONITOR (itself standing in for a dotted import
// path) to a concrete backend without reflection-based string resolution.
var registry = map[string]Factory{
	"polling":  func(cb func(string), interval time.Duration, log logrus.FieldLogger) (Backend, error) { return NewPollingBackend(cb, interval, log), nil },
	"fsnotify": NewFSNotifyBackend,
}

// Register adds or replaces a named backend factory. Embedders can call
// this to install a custom backend (e.g. a watchman-backed one) without
// modifying this package.
func Register(name string, f Factory) {
	registry[name] = f
}

// Lookup resolves a backend name to its factory. ok is false for an
// unregistered name.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}

// Default picks the preferred backend the same way an auto-detect
// did: prefer a native OS watcher over polling, with polling as the
// fallback that always exists. reloaderd only ships fsnotify and polling,
// so the "external daemon" tier from the spec is skipped.
func Default() Factory {
	if f, ok := registry["fsnotify"]; ok {
		return f
	}
	return registry["polling"]
}
