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
package worker_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloaderd/reloaderd/pkg/worker"
)

func TestScannerReportsItsOwnSourceFile(t *testing.T) {
	results := make(chan []string, 4)
	s := worker.NewScanner(20*time.Millisecond, true, func(paths []string) {
		results <- paths
	}, nil)
	s.Start()
	defer func() {
		s.Stop()
		s.Join()
	}()

	select {
	case paths := <-results:
		require.NotEmpty(t, paths)
		found := false
		for _, p := range paths {
			if filepath.Base(p) == "scanner_test.go" {
				found = true
			}
		}
		assert.True(t, found, "expected scanner to observe its own calling test file, got %v", paths)
	case <-time.After(2 * time.Second):
		t.Fatal("scanner never reported any files")
	}
}

func TestScannerDoesNotReportAlreadyKnownFilesTwice(t *testing.T) {
	var calls int
	results := make(chan []string, 8)
	s := worker.NewScanner(10*time.Millisecond, true, func(paths []string) {
		calls++
		results <- paths
	}, nil)
	s.Start()
	defer func() {
		s.Stop()
		s.Join()
	}()

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("scanner never reported any files")
	}

	// A second cycle with no new goroutine activity should report
	// nothing new; give it a couple of intervals to be sure.
	time.Sleep(60 * time.Millisecond)
	select {
	case extra := <-results:
		t.Fatalf("expected no further reports once files are known, got %v", extra)
	default:
	}
}
