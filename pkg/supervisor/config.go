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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/reloaderd/reloaderd/pkg/monitor"
	"github.com/reloaderd/reloaderd/pkg/worker"
)

// Config configures a Reloader. It mirrors the keyword arguments of the
// library surface for starting and attaching to the reload loop.
type Config struct {
	// Spec describes the worker entry point and the arguments it runs
	// with.
	Spec worker.Spec

	// ReloadInterval is the mandatory minimum wall-clock debounce
	// between generation starts.
	ReloadInterval time.Duration
	// ShutdownInterval bounds how long a generation waits for a
	// graceful exit before force-killing. Defaults to ReloadInterval.
	ShutdownInterval time.Duration

	// WatchPaths are glob patterns added to the monitor proxy before
	// the first generation starts.
	WatchPaths []string
	// IgnorePatterns are shell-style globs; matches are dropped at
	// AddPath time.
	IgnorePatterns []string

	// MonitorFactory overrides the auto-detected file-monitor backend.
	MonitorFactory monitor.Factory

	// Verbose records the integer verbosity the caller built Log with
	// (higher is noisier). The Reloader does not read it and does not
	// change Log's level; Log's own level decides what is emitted.
	Verbose int
	Log     logrus.FieldLogger
}

// DefaultConfig returns a Config with reasonable documented defaults
// (reload_interval=1, shutdown_interval=reload_interval, verbose=1).
func DefaultConfig() Config {
	return Config{
		ReloadInterval:   time.Second,
		ShutdownInterval: 0, // resolved to ReloadInterval in Validate
		Verbose:          1,
	}
}

// Validate fills in defaults that depend on other fields and rejects
// impossible configurations.
func (c *Config) Validate() error {
	if c.Spec.EntryPoint == "" {
		return fmt.Errorf("supervisor: Config.Spec.EntryPoint is required")
	}
	if c.ReloadInterval <= 0 {
		c.ReloadInterval = time.Second
	}
	if c.ShutdownInterval <= 0 {
		c.ShutdownInterval = c.ReloadInterval
	}
	if c.MonitorFactory == nil {
		if name := os.Getenv("RELOADERD_DEFAULT_MONITOR"); name != "" {
			f, ok := monitor.Lookup(name)
			if !ok {
				return fmt.Errorf("supervisor: RELOADERD_DEFAULT_MONITOR names unknown backend %q", name)
			}
			c.MonitorFactory = f
		} else {
			c.MonitorFactory = monitor.Default()
		}
	}
	if c.Log == nil {
		c.Log = logrus.StandardLogger()
	}
	return nil
}
