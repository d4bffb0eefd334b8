/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blockstudio/internal/block"
)

// DraftSource exposes the page currently being edited. *canvas.Controller satisfies it.
type DraftSource interface {
	Page() (id, name string)
	Root() *block.Block
}

// CrashSaver writes the draft of a DraftSource into the backups folder without touching
// the page files, so a half-finished edit never replaces a good draft.
type CrashSaver struct {
	Store  *FileStore
	Source DraftSource
}

// AutosaveCrash serializes the active tree to backups/crash-<page>-<stamp>.json and
// returns the written path.
func (c CrashSaver) AutosaveCrash() (string, error) {
	if c.Store == nil || c.Source == nil {
		return "", errors.New("crash saver is not configured")
	}
	id, _ := c.Source.Page()
	if id == "" {
		id = "unsaved"
	}
	root := c.Source.Root()
	if root == nil {
		return "", errors.New("no tree to save")
	}
	data, err := block.MarshalIndent(root)
	if err != nil {
		return "", fmt.Errorf("marshal draft: %w", err)
	}
	dir := c.Store.backupDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure backups dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("crash-%s-%s.json", id, time.Now().Format(backupStamp)))
	if err := writeFileSync(path, data); err != nil {
		return "", fmt.Errorf("write crash snapshot: %w", err)
	}
	return path, nil
}

// ReportDir is where crash reports for this store go.
func (c CrashSaver) ReportDir() string {
	if c.Store == nil {
		return ""
	}
	return c.Store.backupDir()
}

// CrashPage names the page for crash reports.
func (c CrashSaver) CrashPage() string {
	if c.Source == nil {
		return ""
	}
	id, name := c.Source.Page()
	switch {
	case id == "":
		return "unsaved"
	case name == "":
		return id
	}
	return name + " (" + id + ")"
}
