/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic in the editor shell into a crash report and an emergency
// save of the page being edited.
package crash

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"gopkg.in/yaml.v3"

	applog "blockstudio/internal/log"
	"blockstudio/internal/version"
)

const exitCode = 2

// exitFn is swapped by tests.
var exitFn = os.Exit

// Autosaver writes the active page somewhere safe and returns where.
// storage.CrashSaver is the file-backed implementation.
type Autosaver interface {
	AutosaveCrash() (string, error)
}

// Autosavers may also implement these to place the report and name the page in it.
type (
	reportDirer interface{ ReportDir() string }
	pageNamer   interface{ CrashPage() string }
)

// Report is the YAML body of a crash report file.
type Report struct {
	App           string    `yaml:"app"`
	Version       string    `yaml:"version"`
	Platform      string    `yaml:"platform"`
	Time          time.Time `yaml:"time"`
	Page          string    `yaml:"page,omitempty"`
	Panic         string    `yaml:"panic"`
	Autosave      string    `yaml:"autosave,omitempty"`
	AutosaveError string    `yaml:"autosave_error,omitempty"`
	Stack         string    `yaml:"stack"`
}

// Recover handles a panic in the calling goroutine: it saves the active page through
// a (may be nil), writes a crash report and exits with status 2. Without a panic it
// does nothing.
//
// Usage: defer crash.Recover(saver)
func Recover(a Autosaver) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	rep := newReport(r, stack)
	if a != nil {
		if pn, ok := a.(pageNamer); ok {
			rep.Page = pn.CrashPage()
		}
		path, err := a.AutosaveCrash()
		if err != nil {
			rep.AutosaveError = err.Error()
			l.Error("autosave failed", slog.Any("err", err))
		} else {
			rep.Autosave = path
			l.Info("autosave written", slog.String("path", path))
		}
	}

	reportPath, err := writeReport(reportDir(a), rep)
	if err != nil {
		l.Error("crash report failed", slog.Any("err", err))
	}
	fmt.Fprintf(os.Stderr, "Block Studio stopped after an internal error.\nCrash report: %s\n", reportPath)
	if rep.Autosave != "" {
		fmt.Fprintf(os.Stderr, "Unsaved page copy: %s\n", rep.Autosave)
	}
	fmt.Fprintf(os.Stderr, "Version: %s (%s)\n", rep.Version, rep.Platform)
	exitFn(exitCode)
}

func newReport(panicVal any, stack []byte) Report {
	return Report{
		App:      "blockstudio",
		Version:  version.String(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
		Time:     time.Now().UTC(),
		Panic:    fmt.Sprint(panicVal),
		Stack:    string(stack),
	}
}

func reportDir(a Autosaver) string {
	if rd, ok := a.(reportDirer); ok {
		if d := rd.ReportDir(); d != "" {
			return d
		}
	}
	return os.TempDir()
}

// writeReport stores rep as dir/crash-<stamp>.yaml.
func writeReport(dir string, rep Report) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.yaml", rep.Time.Format("20060102-150405.000")))
	data, err := yaml.Marshal(rep)
	if err != nil {
		return path, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return path, err
	}
	return path, f.Sync()
}
