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
//go:build windows

package procgroup

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// jobObjectGroup assigns every member process to a single Windows Job
// Object with JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE set, so that closing the
// job handle (Close) terminates the worker and every descendant it spawned,
// which plain process-group signaling cannot guarantee on Windows.
type jobObjectGroup struct {
	handle windows.Handle
}

// New creates a Job Object configured to kill all members when closed.
func New() (Group, error) {
	h, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("procgroup: creating job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		h,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("procgroup: configuring job object: %w", err)
	}

	return &jobObjectGroup{handle: h}, nil
}

func (g *jobObjectGroup) AddChild(pid int) error {
	h, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("procgroup: opening pid %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)
	if err := windows.AssignProcessToJobObject(g.handle, h); err != nil {
		return fmt.Errorf("procgroup: assigning pid %d to job: %w", pid, err)
	}
	return nil
}

func (g *jobObjectGroup) Close() error {
	return windows.CloseHandle(g.handle)
}
