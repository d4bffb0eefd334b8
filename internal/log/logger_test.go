/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func lastJSONLine(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var last string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines in %q", data)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", last, err)
	}
	return m
}

// TestInitWritesFileAndConsole checks that the rotating file gets JSON records with
// the static, component, op and page attributes while the console stays readable.
func TestInitWritesFileAndConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bst.json")
	var console bytes.Buffer
	Init(Options{Level: "debug", File: path, Output: &console, Color: "never"})
	t.Cleanup(func() { Init(Options{Output: &bytes.Buffer{}}) })

	l := WithOperation(WithComponent("storage"), "save")
	l.InfoContext(ContextWithPage(context.Background(), "page-1"), "page saved", slog.Int("bytes", 42))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	m := lastJSONLine(t, data)
	for k, want := range map[string]any{
		"app": "blockstudio", "component": "storage", "op": "save", "page": "page-1", "msg": "page saved",
	} {
		if m[k] != want {
			t.Fatalf("%s = %v, want %v (record %v)", k, m[k], want, m)
		}
	}
	if _, ok := m["ver"].(string); !ok {
		t.Fatalf("missing ver attr: %v", m)
	}

	out := console.String()
	if !strings.Contains(out, "INF [storage/save] page saved") || !strings.Contains(out, "page=page-1") {
		t.Fatalf("console line malformed: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("colour written with Color=never: %q", out)
	}
}

func TestJSONConsoleAndLevels(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Options{Output: &bytes.Buffer{}}) })

	L().Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buf.String())
	}
	SetLevel("debug")
	if Level() != slog.LevelDebug {
		t.Fatalf("level = %v", Level())
	}
	L().Debug("kept")
	if m := lastJSONLine(t, buf.Bytes()); m["msg"] != "kept" {
		t.Fatalf("unexpected record %v", m)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "warn")
	t.Setenv(EnvFormat, "json")
	t.Setenv(EnvSource, "true")
	t.Setenv(EnvFile, "")
	t.Setenv(EnvColor, "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" || opts.Color != "auto" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("BST_SURELY_UNSET", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, " WARN ": slog.LevelWarn, "warning": slog.LevelWarn,
		"error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestUseColor(t *testing.T) {
	var buf bytes.Buffer
	if !useColor("always", &buf) || useColor("never", os.Stderr) {
		t.Fatalf("explicit modes ignored")
	}
	if useColor("auto", &buf) {
		t.Fatalf("a buffer is not a terminal")
	}
}

func TestPageFromContext(t *testing.T) {
	if _, ok := PageFromContext(context.Background()); ok {
		t.Fatalf("expected no page in empty context")
	}
	if _, ok := PageFromContext(ContextWithPage(context.Background(), "")); ok {
		t.Fatalf("empty page id must not count")
	}
	if id, ok := PageFromContext(ContextWithPage(context.Background(), "p")); !ok || id != "p" {
		t.Fatalf("got %q %v", id, ok)
	}
}
