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
package supervisor

// signalCode is the single byte written into the self-pipe for each event
// source the reloader loop cares about. Keeping this to one byte per event
// is what lets the whole loop block on a single read descriptor.
type signalCode byte

const (
	sigInt signalCode = iota + 1
	sigHUP
	sigTERM
	sigCHLD
	sigFileChanged
	sigWorkerCommand
)
