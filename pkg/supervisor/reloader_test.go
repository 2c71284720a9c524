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
package supervisor_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/reloaderd/reloaderd/pkg/supervisor"
	"github.com/reloaderd/reloaderd/pkg/worker"
)

// TestMain lets this same test binary play both roles: the supervisor
// process that runs go test, and the worker processes Reloader.Run spawns
// by re-executing os.Executable(). This mirrors how reloaderd itself is
// meant to be embedded — one binary, re-exec'd into a worker role by an
// environment variable.
func TestMain(m *testing.M) {
	if supervisor.IsWorkerProcess() {
		log := logrus.New()
		log.SetLevel(logrus.WarnLevel)
		if err := supervisor.RunWorker(log, os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// appendStatusPlain is a side channel: worker entry points append one
// line per generation they run, so the supervisor-side test can observe
// generation counts without reaching across the process boundary. Entry
// points run inside a re-exec'd worker process, not the test goroutine,
// so there is no *testing.T available to report errors through.
func appendStatusPlain(path, line string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, line)
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	if len(b) == 0 {
		return 0
	}
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func waitForLineCount(t *testing.T, path string, want int, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if countLines(t, path) >= want {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}

func init() {
	worker.Register("test-sleep-forever", func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			appendStatusPlain(args[0], "ran")
		}
		<-ctx.Done()
		return nil
	})
	worker.Register("test-exit-clean", func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			appendStatusPlain(args[0], "ran")
		}
		return nil
	})
	worker.Register("test-crash", func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			appendStatusPlain(args[0], "ran")
		}
		return fmt.Errorf("simulated worker failure")
	})
	worker.Register("test-trigger-reload-once", func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			appendStatusPlain(args[0], "ran")
		}
		proxy, err := worker.GetProxy()
		if err != nil {
			return err
		}
		return proxy.TriggerReload()
	})
}

func testConfig(t *testing.T, entry string, statusFile string, watch []string) supervisor.Config {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return supervisor.Config{
		Spec: worker.Spec{
			EntryPoint: entry,
			Args:       []string{statusFile},
		},
		ReloadInterval:   50 * time.Millisecond,
		ShutdownInterval: 500 * time.Millisecond,
		WatchPaths:       watch,
		Log:              log,
	}
}

// Scenario: touching a watched file triggers exactly one additional
// generation (spec §8 scenario 1).
func TestReloaderTouchTriggersReload(t *testing.T) {
	dir := t.TempDir()
	status := filepath.Join(dir, "status.log")
	watched := filepath.Join(dir, "foo.ini")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0o644))

	cfg := testConfig(t, "test-sleep-forever", status, []string{watched})
	r := supervisor.NewReloader(cfg)
	go func() { _ = r.Run() }()

	require.True(t, waitForLineCount(t, status, 1, 3*time.Second), "first generation never started")

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(watched, []byte("b"), 0o644))

	require.True(t, waitForLineCount(t, status, 2, 3*time.Second), "touching watched file did not trigger a second generation")
}

// Scenario: a worker that exits cleanly before any file change stops the
// reload loop until a change arrives (spec §8 scenario 5's clean-exit
// counterpart, and the WAIT sub-state described in §4.1).
func TestReloaderCleanExitEntersWaitState(t *testing.T) {
	dir := t.TempDir()
	status := filepath.Join(dir, "status.log")
	watched := filepath.Join(dir, "foo.ini")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0o644))

	cfg := testConfig(t, "test-exit-clean", status, []string{watched})
	r := supervisor.NewReloader(cfg)
	go func() { _ = r.Run() }()

	require.True(t, waitForLineCount(t, status, 1, 3*time.Second))

	// No second generation should start on its own.
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, countLines(t, status), "supervisor restarted without a triggering event")

	require.NoError(t, os.WriteFile(watched, []byte("b"), 0o644))
	require.True(t, waitForLineCount(t, status, 2, 3*time.Second), "file change did not resume scheduling from WAIT")
}

// Scenario: a crash loop produces one generation, then WAIT, with no
// further restarts until a watched file changes (spec §8 scenario 5).
func TestReloaderCrashEntersWaitState(t *testing.T) {
	dir := t.TempDir()
	status := filepath.Join(dir, "status.log")
	watched := filepath.Join(dir, "foo.ini")
	require.NoError(t, os.WriteFile(watched, []byte("a"), 0o644))

	cfg := testConfig(t, "test-crash", status, []string{watched})
	r := supervisor.NewReloader(cfg)
	go func() { _ = r.Run() }()

	require.True(t, waitForLineCount(t, status, 1, 3*time.Second))
	time.Sleep(300 * time.Millisecond)
	require.Equal(t, 1, countLines(t, status), "crash loop should not restart on its own")
}

// Scenario: the worker's own trigger_reload() call produces exactly one
// generation transition (spec §8 scenario 3).
func TestReloaderExplicitTriggerReload(t *testing.T) {
	dir := t.TempDir()
	status := filepath.Join(dir, "status.log")

	cfg := testConfig(t, "test-trigger-reload-once", status, nil)
	r := supervisor.NewReloader(cfg)
	go func() { _ = r.Run() }()

	require.True(t, waitForLineCount(t, status, 2, 3*time.Second), "explicit TriggerReload did not produce a second generation")
}
