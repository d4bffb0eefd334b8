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
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const consoleTime = "15:04:05.000"

// ANSI colours per level.
const (
	ansiReset = "\x1b[0m"
	ansiDim   = "\x1b[2m"
	ansiBlue  = "\x1b[34m"
	ansiGreen = "\x1b[32m"
	ansiYel   = "\x1b[33m"
	ansiRed   = "\x1b[31m"
)

type consoleOptions struct {
	Level     slog.Leveler
	AddSource bool
	Color     bool
}

// consoleHandler writes one line per record:
//
//	15:04:05.000 INF [canvas/setPage] page installed name=home blocks=12
//
// The component and op attributes are lifted into the bracket; group names prefix
// the keys of attributes added after them.
type consoleHandler struct {
	opts      consoleOptions
	mu        *sync.Mutex
	w         io.Writer
	component string
	op        string
	prefix    string
	preformat string
}

func newConsoleHandler(w io.Writer, opts consoleOptions) *consoleHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &consoleHandler{opts: opts, mu: &sync.Mutex{}, w: w}
}

func (h *consoleHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.opts.Level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.paint(&b, ansiDim, ts.Format(consoleTime))
	b.WriteByte(' ')
	h.paint(&b, levelColor(r.Level), levelTag(r.Level))
	if h.component != "" || h.op != "" {
		b.WriteString(" [")
		b.WriteString(h.component)
		if h.op != "" {
			b.WriteByte('/')
			b.WriteString(h.op)
		}
		b.WriteByte(']')
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)
	b.WriteString(h.preformat)
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, h.prefix, a)
		return true
	})
	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := frames.Next()
		b.WriteByte(' ')
		h.paint(&b, ansiDim, filepath.Base(f.File)+":"+strconv.Itoa(f.Line))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	var b strings.Builder
	b.WriteString(h.preformat)
	for _, a := range attrs {
		if h.prefix == "" {
			switch a.Key {
			case "component":
				c.component = a.Value.String()
				continue
			case "op":
				c.op = a.Value.String()
				continue
			}
		}
		c.appendAttr(&b, h.prefix, a)
	}
	c.preformat = b.String()
	return &c
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func (h *consoleHandler) appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	h.paint(b, ansiDim, prefix+a.Key+"=")
	b.WriteString(valueString(a.Value))
}

func (h *consoleHandler) paint(b *strings.Builder, color, s string) {
	if !h.opts.Color {
		b.WriteString(s)
		return
	}
	b.WriteString(color)
	b.WriteString(s)
	b.WriteString(ansiReset)
}

func levelTag(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}

func levelColor(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return ansiBlue
	case l < slog.LevelWarn:
		return ansiGreen
	case l < slog.LevelError:
		return ansiYel
	default:
		return ansiRed
	}
}

// valueString quotes strings containing spaces or quotes and trims float noise.
func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return strconv.Quote(err.Error())
		}
	}
	return v.String()
}
