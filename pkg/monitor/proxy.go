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
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
)

// Proxy wraps a Backend for the supervisor: it expands glob patterns
// recursively, drops paths matching an ignore pattern, and debounces
// per-generation change notifications down to a single wakeup.
type Proxy struct {
	backend  Backend
	ignores  []glob.Glob
	log      logrus.FieldLogger
	onChange func() // writes FILE_CHANGED into the supervisor's self-pipe

	mu        sync.Mutex
	changed   map[string]struct{}
	isChanged bool
}

// NewProxy builds a proxy over backend. ignorePatterns are shell-style
// globs compiled once, up front, and are immutable for the proxy's
// lifetime (IgnorePattern is immutable for the supervisor's
// lifetime). onChange is called at most once per generation, the first
// time any watched file changes; it is expected to write a single byte
// into the supervisor's self-pipe.
func NewProxy(backend Backend, ignorePatterns []string, onChange func(), log logrus.FieldLogger) (*Proxy, error) {
	p := &Proxy{
		backend:  backend,
		log:      log,
		onChange: onChange,
		changed:  make(map[string]struct{}),
	}
	for _, pat := range ignorePatterns {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			if log != nil {
				log.Warnf("monitor: ignoring invalid pattern %q: %v", pat, err)
			}
			continue
		}
		p.ignores = append(p.ignores, g)
	}
	return p, nil
}

// AddPath expands pattern as a recursive glob and forwards every
// non-ignored match to the backend. If nothing on disk matches, the raw
// pattern is forwarded unchanged so that a file expected to be created
// later is still tracked.
func (p *Proxy) AddPath(pattern string) {
	abs, err := filepath.Abs(pattern)
	if err != nil {
		if p.log != nil {
			p.log.Warnf("monitor: resolving %q: %v", pattern, err)
		}
		return
	}

	root, hasMeta := staticRoot(abs)
	if !hasMeta {
		p.addIfNotIgnored(abs)
		return
	}

	g, err := glob.Compile(abs, '/')
	if err != nil {
		if p.log != nil {
			p.log.Warnf("monitor: invalid glob %q: %v", pattern, err)
		}
		return
	}

	matched := 0
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // log-and-continue: a bad pattern should not abort the whole watch set
		}
		if d.IsDir() {
			return nil
		}
		if g.Match(path) {
			matched++
			p.addIfNotIgnored(path)
		}
		return nil
	})

	if matched == 0 {
		p.addIfNotIgnored(abs)
	}
}

func (p *Proxy) addIfNotIgnored(path string) {
	for _, g := range p.ignores {
		if g.Match(path) {
			return
		}
	}
	if err := p.backend.AddPath(path); err != nil && p.log != nil {
		p.log.Warnf("monitor: backend rejected %s: %v", path, err)
	}
}

// fileChanged is the callback handed to the backend. It is safe for
// concurrent use; only the first change of a generation flips isChanged
// and fires onChange.
func (p *Proxy) fileChanged(path string) {
	p.mu.Lock()
	_, already := p.changed[path]
	p.changed[path] = struct{}{}
	first := !p.isChanged
	p.isChanged = true
	p.mu.Unlock()

	if !already && p.log != nil {
		p.log.Debugf("%s changed", path)
	}
	if first && p.onChange != nil {
		p.onChange()
	}
}

// HasChanged reports whether any watched file has changed since the last
// ClearChanges, along with the set of paths that changed.
func (p *Proxy) HasChanged() (bool, []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isChanged {
		return false, nil
	}
	paths := make([]string, 0, len(p.changed))
	for path := range p.changed {
		paths = append(paths, path)
	}
	return true, paths
}

// ClearChanges resets change state at the start of each generation.
func (p *Proxy) ClearChanges() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = make(map[string]struct{})
	p.isChanged = false
}

// Callback returns the function to hand to a Backend constructor.
func (p *Proxy) Callback() func(string) { return p.fileChanged }

// Start delegates to the backend.
func (p *Proxy) Start() error { return p.backend.Start() }

// Stop delegates to the backend.
func (p *Proxy) Stop() { p.backend.Stop() }

// Join delegates to the backend.
func (p *Proxy) Join() { p.backend.Join() }

// staticRoot returns the deepest directory in path that contains no glob
// metacharacters, and whether path actually contains any.
func staticRoot(path string) (root string, hasMeta bool) {
	const metaChars = "*?[{"
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		if strings.ContainsAny(seg, metaChars) {
			hasMeta = true
			root = strings.Join(segments[:i], "/")
			if root == "" {
				root = "/"
			}
			return root, true
		}
	}
	return path, false
}
