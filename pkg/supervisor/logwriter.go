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

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// logWriter adapts a worker's stdout/stderr pipe into line-oriented
// logrus output. An io.Writer rather than a line reader because exec.Cmd
// wants one to assign directly to Stdout/Stderr.
type logWriter struct {
	log logrus.FieldLogger
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		w.log.Info(string(line))
	}
	return len(p), nil
}
