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
// Package builtin registers a small set of ready-made worker entry points
// so reloaderd is usable straight from the CLI without writing Go code, the
// same convenience CompileDaemon's -command flag gives its users instead
// of requiring a library integration.
package builtin

import (
	"context"
	"os"
	"os/exec"

	"github.com/reloaderd/reloaderd/pkg/worker"
)

func init() {
	worker.Register("run-command", runCommand)
}

// runCommand execs args[0] with the remaining args as its own arguments,
// streaming its stdout/stderr through unchanged, and returns when it
// exits or ctx is cancelled by a control-pipe break.
func runCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
