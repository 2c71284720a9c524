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
// Package logging builds the logrus logger reloaderd's supervisor and
// worker components share: a logrus.FieldLogger passed in explicitly
// rather than a package-level global.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// Options configures New.
type Options struct {
	// Verbose is an integer verbosity knob: 0 is quiet (warnings and
	// above), 1 is the default (info and above), 2+ enables debug.
	Verbose int
	// JSON forces the JSON formatter regardless of whether stderr is a
	// terminal.
	JSON bool
}

// New builds a *logrus.Logger configured per Options. Output goes to
// stderr, leaving stdout free for the supervised child's own output.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	switch {
	case opts.Verbose <= 0:
		log.SetLevel(logrus.WarnLevel)
	case opts.Verbose == 1:
		log.SetLevel(logrus.InfoLevel)
	default:
		log.SetLevel(logrus.DebugLevel)
	}

	if opts.JSON || !term.IsTerminal(int(os.Stderr.Fd())) {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return log
}
