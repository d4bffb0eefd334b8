/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package log sets up the process-wide slog logger: a console handler on stderr and,
// optionally, a rotating JSON file. Records logged with a context carrying a page id
// (see ContextWithPage) are tagged with it.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"blockstudio/internal/version"
)

// Environment variables read by FromEnv.
const (
	EnvLevel  = "BST_LOG_LEVEL"  // debug|info|warn|error
	EnvFormat = "BST_LOG_FORMAT" // console|json
	EnvFile   = "BST_LOG_FILE"   // enables the rotating JSON file
	EnvSource = "BST_LOG_SOURCE" // true|false
	EnvColor  = "BST_LOG_COLOR"  // auto|always|never
)

// Options controls Init. The zero value logs INFO and above to stderr in console format.
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string // rotated JSON log file, optional
	// Color is "auto" (colour when Output is a terminal), "always" or "never".
	Color string
	// Output replaces stderr for the console handler.
	Output io.Writer
}

// Rotation of the file log.
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 3
	fileMaxAgeDays = 28
)

var (
	mu      sync.RWMutex
	current *slog.Logger
	level   = new(slog.LevelVar)
)

// L returns the application logger, initializing it from the environment on first use.
func L() *slog.Logger {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Init replaces the application logger and slog.Default.
func Init(opts Options) {
	level.Set(parseLevel(opts.Level))
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}

	var console slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		console = slog.NewJSONHandler(out, hopts)
	} else {
		console = newConsoleHandler(out, consoleOptions{
			Level:     level,
			AddSource: opts.AddSource,
			Color:     useColor(opts.Color, out),
		})
	}
	h := console
	if path := strings.TrimSpace(opts.File); path != "" {
		w := &lj.Logger{
			Filename:   path,
			MaxSize:    fileMaxSizeMB,
			MaxBackups: fileMaxBackups,
			MaxAge:     fileMaxAgeDays,
			Compress:   true,
		}
		h = fanout{console, slog.NewJSONHandler(w, hopts)}
	}

	l := slog.New(pageTagger{next: h}).With(
		slog.String("app", "blockstudio"),
		slog.String("ver", version.Version),
	)
	mu.Lock()
	current = l
	mu.Unlock()
	slog.SetDefault(l)
}

// SetLevel changes the level of the running logger.
func SetLevel(s string) { level.Set(parseLevel(s)) }

// Level reports the active level.
func Level() slog.Level { return level.Level() }

// FromEnv builds Options from the BST_LOG_* variables.
func FromEnv() Options {
	return Options{
		Level:     getenv(EnvLevel, "info"),
		Format:    getenv(EnvFormat, "console"),
		AddSource: strings.EqualFold(getenv(EnvSource, "false"), "true"),
		File:      os.Getenv(EnvFile),
		Color:     getenv(EnvColor, "auto"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// Nop returns a logger that drops everything.
func Nop() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type pageKey struct{}

// ContextWithPage tags ctx with the active page id; records logged with that context
// carry a "page" attribute.
func ContextWithPage(ctx context.Context, pageID string) context.Context {
	return context.WithValue(ctx, pageKey{}, pageID)
}

// PageFromContext returns the page id stored by ContextWithPage.
func PageFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(pageKey{}).(string)
	return id, ok && id != ""
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// useColor resolves the colour mode against the writer.
func useColor(mode string, w io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "always":
		return true
	case "never":
		return false
	}
	if _, off := os.LookupEnv("NO_COLOR"); off {
		return false
	}
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// pageTagger adds the context's page id to each record.
type pageTagger struct{ next slog.Handler }

func (p pageTagger) Enabled(ctx context.Context, l slog.Level) bool { return p.next.Enabled(ctx, l) }

func (p pageTagger) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := PageFromContext(ctx); ok {
		r = r.Clone()
		r.AddAttrs(slog.String("page", id))
	}
	return p.next.Handle(ctx, r)
}

func (p pageTagger) WithAttrs(attrs []slog.Attr) slog.Handler {
	return pageTagger{next: p.next.WithAttrs(attrs)}
}

func (p pageTagger) WithGroup(name string) slog.Handler {
	return pageTagger{next: p.next.WithGroup(name)}
}
