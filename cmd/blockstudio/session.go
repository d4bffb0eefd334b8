/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"

	"blockstudio/internal/block"
	"blockstudio/internal/canvas"
	"blockstudio/internal/history"
	applog "blockstudio/internal/log"
)

// cliNotifier routes controller messages to the terminal. Confirmations are answered
// by the --yes flag.
type cliNotifier struct {
	out io.Writer
	yes bool
}

func (n cliNotifier) Confirm(_ context.Context, message string) bool {
	if !n.yes {
		fmt.Fprintf(n.out, "%s (pass --yes to confirm)\n", message)
	}
	return n.yes
}

func (n cliNotifier) Notify(level canvas.Level, message string) {
	fmt.Fprintf(n.out, "%s: %s\n", level, message)
}

// newController wires an editing controller against the backend with the configured
// editor settings.
func newController(b *backend, n canvas.Notifier) *canvas.Controller {
	ed := cfg.Editor
	return canvas.New(canvas.Options{
		Engine:  &block.Engine{DuplicateOffset: ed.DuplicateOffsetPx, Logger: applog.WithComponent("block")},
		Catalog: cat,
		History: history.NewManager(history.Config{
			MaxBytes:    ed.HistoryMaxBytes,
			MaxDepth:    ed.HistoryMaxDepth,
			MinInterval: ed.MergeInterval(),
		}),
		Store:      b.store(),
		Notifier:   n,
		Logger:     applog.WithComponent("canvas"),
		Breakpoint: ed.Breakpoint(),
		PaddingX:   ed.FitPaddingX,
		PaddingY:   ed.FitPaddingY,
	})
}
