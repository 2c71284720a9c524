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
package ipc

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// twoEndedPipe builds two independent Pipe wrappers sharing the same pair
// of underlying os.Pipe()s, one configured as the parent would be and one
// as the child would be after a real fork. This avoids duplicating file
// descriptors to simulate a process boundary in-process.
func twoEndedPipe(t *testing.T) (parent, child *Pipe) {
	t.Helper()
	parent, child, err := NewLoopback(newTestLogger())
	require.NoError(t, err)
	return parent, child
}

func TestPipeRoundTrip(t *testing.T) {
	parent, child := twoEndedPipe(t)

	want := NewWatchFiles([]string{"/tmp/a.go", "/tmp/b.go"})
	require.NoError(t, child.Send(want))

	select {
	case got := <-parent.Incoming():
		paths, ok := got.IsWatchFiles()
		require.True(t, ok)
		assert.Equal(t, want.WatchFiles.Paths, paths)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestPipeReloadRoundTrip(t *testing.T) {
	parent, child := twoEndedPipe(t)

	require.NoError(t, child.Send(NewReload()))

	select {
	case got := <-parent.Incoming():
		assert.True(t, got.IsReload())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for packet")
	}
}

func TestPipeEOFClosesIncoming(t *testing.T) {
	parent, child := twoEndedPipe(t)
	child.Close()

	select {
	case _, ok := <-parent.Incoming():
		assert.False(t, ok, "incoming channel should be closed on EOF with no pending packets")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for EOF")
	}
}
