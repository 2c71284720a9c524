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
//go:build !windows

package procgroup

// unixGroup is a no-op: the worker is started with Setpgid, so sending
// SIGTERM/SIGKILL to -pid (the negative of the worker's pid) already
// reaches every descendant that did not explicitly detach, which is the
// same guarantee a plain SIGCHLD-driven supervisor would lose (it never tracks
// grandchild pids individually either).
type unixGroup struct{}

// New returns the Unix no-op process-group tracker.
func New() (Group, error) { return &unixGroup{}, nil }

func (*unixGroup) AddChild(int) error { return nil }
func (*unixGroup) Close() error       { return nil }
