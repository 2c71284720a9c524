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
// Package ipc implements the framed, bidirectional control channel between
// a reloaderd supervisor and the worker process it spawns.
package ipc

import "encoding/gob"

// Packet is the tagged value exchanged on the control pipe. Exactly one of
// the embedded payload types is meaningful for a given packet. EOF is
// signaled by Pipe closing its Incoming channel, not by any Packet value.
type Packet struct {
	WatchFiles *WatchFilesPayload
	Reload     *ReloadPayload
}

// WatchFilesPayload is sent child -> parent to announce newly observed
// source files that should join the watched set.
type WatchFilesPayload struct {
	Paths []string
}

// ReloadPayload is sent child -> parent to request an explicit reload,
// bypassing the file monitor entirely.
type ReloadPayload struct{}

func init() {
	gob.Register(Packet{})
}

// NewWatchFiles builds a watch_files packet for the given paths.
func NewWatchFiles(paths []string) Packet {
	return Packet{WatchFiles: &WatchFilesPayload{Paths: paths}}
}

// NewReload builds a reload packet.
func NewReload() Packet {
	return Packet{Reload: &ReloadPayload{}}
}

// IsReload reports whether p carries a reload request.
func (p Packet) IsReload() bool { return p.Reload != nil }

// IsWatchFiles reports whether p carries a watch_files announcement, and
// returns its paths.
func (p Packet) IsWatchFiles() ([]string, bool) {
	if p.WatchFiles == nil {
		return nil, false
	}
	return p.WatchFiles.Paths, true
}
