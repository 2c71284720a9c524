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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloaderd/reloaderd/pkg/worker"
)

func TestRegisterAndResolve(t *testing.T) {
	worker.Register("test.echo", func(ctx context.Context, args []string) error {
		return nil
	})

	fn, err := worker.Resolve("test.echo")
	require.NoError(t, err)
	require.NoError(t, fn(context.Background(), nil))
}

func TestResolveUnknownEntryPoint(t *testing.T) {
	_, err := worker.Resolve("does.not.exist")
	assert.ErrorAs(t, err, new(worker.ErrUnknownEntryPoint))
}

func TestIsActiveOutsideWorker(t *testing.T) {
	// This test process was not spawned by a reloaderd supervisor.
	if worker.IsActive() {
		t.Skip("process-local proxy already installed by an earlier test in this binary")
	}
	_, err := worker.GetProxy()
	assert.ErrorIs(t, err, worker.ErrNotInWorker)
}
