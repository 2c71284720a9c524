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
package monitor_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reloaderd/reloaderd/pkg/monitor"
)

type fakeBackend struct {
	added []string
}

func (f *fakeBackend) AddPath(path string) error { f.added = append(f.added, path); return nil }
func (f *fakeBackend) Start() error              { return nil }
func (f *fakeBackend) Stop()                     {}
func (f *fakeBackend) Join()                     {}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestProxyIgnoresMatchingPaths(t *testing.T) {
	fb := &fakeBackend{}
	p, err := monitor.NewProxy(fb, []string{"/tmp/*"}, func() {}, quietLogger())
	require.NoError(t, err)

	p.AddPath("/tmp/a")
	p.AddPath("/var/b")

	assert.NotContains(t, fb.added, "/tmp/a")
	assert.Contains(t, fb.added, "/var/b")
}

func TestProxyForwardsUnmatchedGlobVerbatim(t *testing.T) {
	fb := &fakeBackend{}
	p, err := monitor.NewProxy(fb, nil, func() {}, quietLogger())
	require.NoError(t, err)

	dir := t.TempDir()
	pattern := filepath.Join(dir, "does-not-exist-*.ini")
	p.AddPath(pattern)

	require.Len(t, fb.added, 1)
	assert.Equal(t, pattern, fb.added[0])
}

func TestProxyExpandsRecursiveGlob(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	f1 := filepath.Join(dir, "a.ini")
	f2 := filepath.Join(sub, "b.ini")
	require.NoError(t, os.WriteFile(f1, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(f2, []byte("x"), 0o644))

	fb := &fakeBackend{}
	p, err := monitor.NewProxy(fb, nil, func() {}, quietLogger())
	require.NoError(t, err)

	p.AddPath(filepath.Join(dir, "**", "*.ini"))

	assert.Contains(t, fb.added, f2)
}

func TestProxyNotifiesOnceThenDebouncesUntilCleared(t *testing.T) {
	fb := &fakeBackend{}
	var notifications int
	p, err := monitor.NewProxy(fb, nil, func() { notifications++ }, quietLogger())
	require.NoError(t, err)

	cb := p.Callback()
	cb("/some/file")
	cb("/some/file")
	cb("/another/file")

	changed, paths := p.HasChanged()
	assert.True(t, changed)
	assert.ElementsMatch(t, []string{"/some/file", "/another/file"}, paths)
	assert.Equal(t, 1, notifications)

	p.ClearChanges()
	changed, _ = p.HasChanged()
	assert.False(t, changed)

	cb("/third/file")
	assert.Equal(t, 2, notifications)
}

func TestProxyConcurrentChangeDelivery(t *testing.T) {
	fb := &fakeBackend{}
	done := make(chan struct{})
	p, err := monitor.NewProxy(fb, nil, func() { close(done) }, quietLogger())
	require.NoError(t, err)

	cb := p.Callback()
	go cb("/concurrent/a")
	go cb("/concurrent/b")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onChange never fired")
	}
}
