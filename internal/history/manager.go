/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package history keeps per-page undo/redo stacks of reversible edit commands.
package history

import (
	"log/slog"
	"sync"
	"time"

	"blockstudio/internal/block"
	applog "blockstudio/internal/log"
)

// Document is the page tree commands act on.
type Document interface {
	Root() *block.Block
	// Restore replaces the whole tree with a serialized snapshot.
	Restore(data []byte) error
}

// Command is one reversible edit.
type Command interface {
	Apply(doc Document) error
	Revert(doc Document) error
	// Size estimates the memory held by the command in bytes.
	Size() int
	Label() string
}

// Merger is implemented by commands that can absorb a follow-up edit of the same
// target, e.g. a colour being dragged across a picker.
type Merger interface {
	Merge(next Command) (Command, bool)
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap across all pages; the oldest undo entries are pruned when exceeded.
	MaxBytes int
	// MaxDepth limits the undo stack of a page (0 means unlimited).
	MaxDepth int
	// MinInterval coalesces mergeable commands recorded within the interval.
	MinInterval time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	cmd Command
	ts  time.Time
}

// Manager provides undo/redo stacks per page. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-page stacks
	undo map[string][]entry
	redo map[string][]entry
	// accounting over both stacks
	totalBytes int
	log        *slog.Logger
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:  cfg,
		undo: make(map[string][]entry),
		redo: make(map[string][]entry),
		log:  applog.WithComponent("history"),
	}
}

// Record pushes an already applied command for page and clears its redo stack.
func (m *Manager) Record(page string, cmd Command) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.cfg.Now()
	m.dropRedoLocked(page)
	stack := m.undo[page]
	if n := len(stack); n > 0 && m.cfg.MinInterval > 0 && now.Sub(stack[n-1].ts) < m.cfg.MinInterval {
		if mg, ok := stack[n-1].cmd.(Merger); ok {
			if merged, ok := mg.Merge(cmd); ok {
				m.totalBytes += merged.Size() - stack[n-1].cmd.Size()
				stack[n-1] = entry{cmd: merged, ts: now}
				m.enforceCapsLocked(page)
				return
			}
		}
	}
	m.undo[page] = append(stack, entry{cmd: cmd, ts: now})
	m.totalBytes += cmd.Size()
	m.enforceCapsLocked(page)
	m.log.Debug("recorded", slog.String("page", page), slog.String("cmd", cmd.Label()))
}

// Undo reverts the newest command of page. It reports false when there is nothing to
// undo. A command that fails to revert stays on the undo stack.
func (m *Manager) Undo(page string, doc Document) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[page]
	if len(stack) == 0 {
		return false, nil
	}
	e := stack[len(stack)-1]
	if err := e.cmd.Revert(doc); err != nil {
		m.log.Error("undo failed", slog.String("page", page), slog.String("cmd", e.cmd.Label()), slog.Any("err", err))
		return false, err
	}
	m.undo[page] = stack[:len(stack)-1]
	m.redo[page] = append(m.redo[page], e)
	return true, nil
}

// Redo re-applies the newest undone command of page.
func (m *Manager) Redo(page string, doc Document) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[page]
	if len(r) == 0 {
		return false, nil
	}
	e := r[len(r)-1]
	if err := e.cmd.Apply(doc); err != nil {
		m.log.Error("redo failed", slog.String("page", page), slog.String("cmd", e.cmd.Label()), slog.Any("err", err))
		return false, err
	}
	m.redo[page] = r[:len(r)-1]
	e.ts = m.cfg.Now()
	m.undo[page] = append(m.undo[page], e)
	m.enforceCapsLocked(page)
	return true, nil
}

func (m *Manager) CanUndo(page string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[page]) > 0
}

func (m *Manager) CanRedo(page string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[page]) > 0
}

// Clear drops both stacks of page.
func (m *Manager) Clear(page string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.undo[page] {
		m.totalBytes -= e.cmd.Size()
	}
	m.dropRedoLocked(page)
	delete(m.undo, page)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, pages int, totalCommands int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages = len(m.undo)
	for _, v := range m.undo {
		totalCommands += len(v)
	}
	for _, v := range m.redo {
		totalCommands += len(v)
	}
	return m.totalBytes, pages, totalCommands
}

func (m *Manager) dropRedoLocked(page string) {
	for _, e := range m.redo[page] {
		m.totalBytes -= e.cmd.Size()
	}
	delete(m.redo, page)
}

func (m *Manager) enforceCapsLocked(page string) {
	if m.cfg.MaxDepth > 0 {
		stack := m.undo[page]
		if len(stack) > m.cfg.MaxDepth {
			toDrop := len(stack) - m.cfg.MaxDepth
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= stack[i].cmd.Size()
			}
			m.undo[page] = append([]entry{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune the oldest undo entry across all pages, but never the
	// entry just recorded.
	for m.totalBytes > m.cfg.MaxBytes {
		oldestPage := ""
		found := false
		var oldestTS time.Time
		for p, stack := range m.undo {
			if len(stack) == 0 || (p == page && len(stack) == 1) {
				continue
			}
			if !found || stack[0].ts.Before(oldestTS) {
				oldestPage, oldestTS, found = p, stack[0].ts, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestPage]
		m.totalBytes -= stack[0].cmd.Size()
		m.undo[oldestPage] = stack[1:]
		if len(m.undo[oldestPage]) == 0 {
			delete(m.undo, oldestPage)
		}
		m.log.Debug("pruned", slog.String("page", oldestPage))
	}
}
