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
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/reloaderd/reloaderd/pkg/ipc"
	"github.com/reloaderd/reloaderd/pkg/worker"
)

// panicsDeepInside is the actual crash site: reportCrashSite must surface
// this file, not runtime.go or the entry point's own frame, proving the
// stack was captured before unwinding past here.
func panicsDeepInside() {
	panic("simulated entry point failure")
}

func TestRuntimeRecoversPanicAndReportsCrashSite(t *testing.T) {
	worker.Register("test.runtime.panic", func(ctx context.Context, args []string) error {
		panicsDeepInside()
		return nil
	})

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	parentSide, childSide, err := ipc.NewLoopback(log)
	require.NoError(t, err)

	rt := worker.NewRuntime(childSide, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- rt.Run(worker.Spec{EntryPoint: "test.runtime.panic"}, nil)
	}()

	// The module scanner also reports watch_files packets on its own
	// cycle, concurrently with the crash-site report, so the crash-site
	// packet is not necessarily the first one received.
	found := false
	deadline := time.After(3 * time.Second)
	for !found {
		select {
		case pkt, ok := <-parentSide.Incoming():
			if !ok {
				t.Fatal("control pipe closed before observing the crash-site report")
			}
			paths, isWatch := pkt.IsWatchFiles()
			if !isWatch {
				continue
			}
			for _, p := range paths {
				if strings.HasSuffix(p, "runtime_test.go") {
					found = true
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for crash-site watch_files packet")
		}
	}

	select {
	case err := <-errCh:
		require.Error(t, err, "a recovered panic must still surface as a returned error")
	case <-time.After(3 * time.Second):
		t.Fatal("Run never returned after the entry point panicked")
	}
}
