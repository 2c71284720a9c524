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
// Package procgroup implements the ProcessGroup{AddChild(pid)} capability
// the spec treats as an external collaborator: ensuring grandchildren die
// when the worker dies. On Unix, process-group signaling (SIGTERM/SIGKILL
// to -pid) already reaches grandchildren that did not detach themselves;
// on Windows, nothing below a Job Object reliably propagates termination,
// so membership has to be tracked explicitly.
package procgroup

// Group tracks the worker processes a supervisor spawns over its whole
// lifetime so they can be torn down together.
type Group interface {
	// AddChild registers pid as belonging to this group.
	AddChild(pid int) error
	// Close tears down the group. On Windows this terminates any member
	// still alive; on Unix it does nothing.
	Close() error
}
