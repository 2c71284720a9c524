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
// Command reloaderd supervises a registered worker entry point, restarting
// it whenever a watched file changes, SIGHUP arrives, or the worker
// itself asks for a reload.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/reloaderd/reloaderd/internal/logging"
	"github.com/reloaderd/reloaderd/pkg/supervisor"
	"github.com/reloaderd/reloaderd/pkg/worker"

	_ "github.com/reloaderd/reloaderd/pkg/builtin" // registers the "run-command" entry point
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		entry            string
		watch            []string
		ignore           []string
		verbose          int
		quiet            bool
		jsonLog          bool
		reloadInterval   time.Duration
		shutdownInterval time.Duration
		runOnce          bool
	)

	cmd := &cobra.Command{
		Use:   "reloaderd --entry NAME [flags] -- [worker args]",
		Short: "Restart a worker process on file changes, the developer-loop supervisor",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if quiet {
				verbose = 0
			} else {
				// Each -v adds to the default verbosity of 1.
				verbose++
			}

			log := logging.New(logging.Options{Verbose: verbose, JSON: jsonLog})

			// A re-exec'd worker carries its entry point via RELOADERD_ENTRY,
			// never as a CLI flag, so this branch must come before the
			// --entry validation below or every worker generation would
			// reject itself before ever reaching RunWorker.
			if supervisor.IsWorkerProcess() {
				return supervisor.RunWorker(log, args)
			}

			if entry == "" {
				return fmt.Errorf("--entry is required")
			}

			cfg := supervisor.DefaultConfig()
			cfg.Spec = worker.Spec{EntryPoint: entry, Args: args}
			cfg.WatchPaths = watch
			cfg.IgnorePatterns = ignore
			cfg.Verbose = verbose
			cfg.Log = log
			if reloadInterval > 0 {
				cfg.ReloadInterval = reloadInterval
			}
			if shutdownInterval > 0 {
				cfg.ShutdownInterval = shutdownInterval
			}

			if runOnce {
				exitCode, err := supervisor.RunOnce(cfg)
				if err != nil {
					return err
				}
				os.Exit(exitCode)
				return nil
			}

			if err := supervisor.NewReloader(cfg).Run(); err != nil {
				os.Exit(1)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&entry, "entry", "", "registered worker entry-point name (required)")
	flags.StringArrayVarP(&watch, "watch", "w", nil, "glob pattern to watch for changes (repeatable)")
	flags.StringArrayVarP(&ignore, "ignore", "x", nil, "glob pattern to ignore (repeatable)")
	flags.CountVarP(&verbose, "verbose", "v", "increase log verbosity (repeatable)")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress info-level logging")
	flags.BoolVar(&jsonLog, "log-format-json", false, "emit JSON-formatted logs")
	flags.DurationVar(&reloadInterval, "reload-interval", 0, "minimum wall-clock time between generations (default 1s)")
	flags.DurationVar(&shutdownInterval, "shutdown-interval", 0, "grace period before force-killing a worker (default reload-interval)")
	flags.BoolVar(&runOnce, "once", false, "run a single supervised generation and exit with its exit code")

	return cmd
}
