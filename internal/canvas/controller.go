/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package canvas holds the per-page editing state of the builder: the installed tree,
// selection, hover, the viewport transform and page loading. Every user-facing edit
// goes through the Controller so it is recorded for undo and published to observers.
//
// Apart from SetPage, which may run concurrently with a newer SetPage, Controller
// methods are meant to be called from the editor's single event loop.
package canvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"blockstudio/internal/block"
	"blockstudio/internal/catalog"
	"blockstudio/internal/history"
	applog "blockstudio/internal/log"
	"blockstudio/internal/style"
)

// Default fit paddings in unscaled canvas pixels.
const (
	DefaultPaddingX = 300.0
	DefaultPaddingY = 200.0
)

var (
	// ErrSuperseded is returned by a SetPage whose result lost to a later call.
	ErrSuperseded = errors.New("page load superseded")
	// ErrSettling is returned by edits attempted while a page is loading.
	ErrSettling = errors.New("page is loading")
	ErrNoPage   = errors.New("no page installed")
	ErrNoStore  = errors.New("no page store configured")
)

// Options wires a Controller.
type Options struct {
	Engine     *block.Engine
	Catalog    catalog.Catalog
	History    *history.Manager
	Store      PageStore
	Notifier   Notifier
	Logger     *slog.Logger
	Breakpoint style.Breakpoint
	PaddingX   float64
	PaddingY   float64
}

// Controller is the canvas of one editor window.
type Controller struct {
	eng      block.Engine
	cat      catalog.Catalog
	hist     *history.Manager
	store    PageStore
	notifier Notifier
	log      *slog.Logger
	padX     float64
	padY     float64

	mu       sync.Mutex
	gen      uint64
	settling bool
	page     Page

	breakpoint   style.Breakpoint
	root         *block.Block
	selection    []string
	hovered      string
	selectedSlot string
	transform    Transform
	observers    []*observerEntry
}

type observerEntry struct{ o block.Observer }

// New builds a Controller with an empty page root installed.
func New(opts Options) *Controller {
	c := &Controller{
		cat:        opts.Catalog,
		hist:       opts.History,
		store:      opts.Store,
		notifier:   opts.Notifier,
		log:        opts.Logger,
		padX:       opts.PaddingX,
		padY:       opts.PaddingY,
		breakpoint: opts.Breakpoint,
		transform:  Transform{Scale: 1},
	}
	if opts.Engine != nil {
		c.eng = *opts.Engine
	}
	if c.eng.Observer != nil {
		c.observers = append(c.observers, &observerEntry{o: c.eng.Observer})
	}
	c.eng.Observer = block.ObserverFunc(c.publish)
	if c.log == nil {
		c.log = applog.WithComponent("canvas")
	}
	if c.eng.Logger == nil {
		c.eng.Logger = applog.WithComponent("block")
	}
	if c.hist == nil {
		c.hist = history.NewManager(history.Config{})
	}
	if c.notifier == nil {
		c.notifier = silent{}
	}
	if c.padX == 0 {
		c.padX = DefaultPaddingX
	}
	if c.padY == 0 {
		c.padY = DefaultPaddingY
	}
	root, err := c.eng.New(block.RootTemplate())
	if err != nil {
		panic(err)
	}
	c.root = root
	return c
}

// Observe registers o for block changes. The returned func unregisters it.
func (c *Controller) Observe(o block.Observer) func() {
	e := &observerEntry{o: o}
	c.observers = append(c.observers, e)
	return func() {
		for i, x := range c.observers {
			if x == e {
				c.observers = append(c.observers[:i], c.observers[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) publish(ch block.Change) {
	for _, e := range c.observers {
		e.o.BlockChanged(ch)
	}
}

func (c *Controller) warn(msg string, attrs ...any) {
	c.log.Warn(msg, attrs...)
	c.notifier.Notify(LevelWarning, msg)
}

// ---- state ----

// Root returns the installed page root.
func (c *Controller) Root() *block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.root
}

// Page returns the id and name of the installed page.
func (c *Controller) Page() (id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page.ID, c.page.Name
}

func (c *Controller) Breakpoint() style.Breakpoint { return c.breakpoint }

// SetBreakpoint switches the active style layer for subsequent edits.
func (c *Controller) SetBreakpoint(bp style.Breakpoint) { c.breakpoint = bp }

// Settling reports whether a page load is in progress.
func (c *Controller) Settling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settling
}

func (c *Controller) Transform() Transform     { return c.transform }
func (c *Controller) SetTransform(t Transform) { c.transform = t }

// Find looks a block up in the installed tree.
func (c *Controller) Find(id string) *block.Block { return block.Find(c.Root(), id) }

// ---- selection ----

// SelectBlock selects b. With multi the block is added to the selection, otherwise it
// replaces it. Ignored while a page is loading.
func (c *Controller) SelectBlock(b *block.Block, multi bool) {
	if b == nil || c.Settling() {
		return
	}
	if !multi {
		c.selection = []string{b.ID()}
		c.selectedSlot = ""
		return
	}
	if !c.IsSelected(b.ID()) {
		c.selection = append(c.selection, b.ID())
	}
}

func (c *Controller) IsSelected(id string) bool {
	for _, s := range c.selection {
		if s == id {
			return true
		}
	}
	return false
}

// SelectedIDs returns the selection in selection order.
func (c *Controller) SelectedIDs() []string { return append([]string(nil), c.selection...) }

// Selection resolves the selected ids to blocks, skipping stale ones.
func (c *Controller) Selection() []*block.Block {
	out := make([]*block.Block, 0, len(c.selection))
	for _, id := range c.selection {
		if b := c.Find(id); b != nil {
			out = append(out, b)
		}
	}
	return out
}

func (c *Controller) ClearSelection() {
	c.selection = nil
	c.selectedSlot = ""
}

// SelectSlot marks a slot of the single selected block as the editing target.
func (c *Controller) SelectSlot(name string) { c.selectedSlot = name }
func (c *Controller) SelectedSlot() string   { return c.selectedSlot }

func (c *Controller) Hover(id string)  { c.hovered = id }
func (c *Controller) Hovered() string { return c.hovered }

// pruneSelection drops ids that are no longer in the tree.
func (c *Controller) pruneSelection() {
	kept := c.selection[:0]
	for _, id := range c.selection {
		if c.Find(id) != nil {
			kept = append(kept, id)
		}
	}
	c.selection = kept
	if c.hovered != "" && c.Find(c.hovered) == nil {
		c.hovered = ""
	}
}

// ---- pages ----

// SetPage loads the named page and installs its tree, draft over published. Selection
// is disabled until it returns. When a later SetPage starts before this one resolves,
// this call's result is discarded and ErrSuperseded returned. A page that fails to
// decode is not installed.
func (c *Controller) SetPage(ctx context.Context, name string) error {
	if c.store == nil {
		return ErrNoStore
	}
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.settling = true
	c.mu.Unlock()

	l := applog.WithOperation(c.log, "setPage").With(slog.String("name", name))
	p, err := c.store.FetchPage(ctx, name)
	var root *block.Block
	if err == nil {
		data := p.Draft
		if len(bytes.TrimSpace(data)) == 0 {
			data = p.Published
		}
		root, err = c.eng.Decode(data, c.cat)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		l.Debug("stale page load discarded")
		return ErrSuperseded
	}
	c.settling = false
	if err != nil {
		c.mu.Unlock()
		l.Error("page load failed", slog.Any("err", err))
		c.notifier.Notify(LevelError, fmt.Sprintf("Could not load page %q", name))
		return fmt.Errorf("load page %q: %w", name, err)
	}
	c.page = Page{ID: p.ID, Name: p.Name}
	c.root = root
	c.selection, c.hovered, c.selectedSlot = nil, "", ""
	c.mu.Unlock()

	// History takes its own lock and calls back into Root while holding it.
	c.hist.Clear(p.ID)
	c.publish(block.Change{Kind: block.Created, Block: root})
	l.InfoContext(applog.ContextWithPage(ctx, p.ID), "page installed", slog.Int("blocks", block.Count(root)))
	return nil
}

// SavePage writes the installed tree as the page draft.
func (c *Controller) SavePage(ctx context.Context) error {
	if c.store == nil {
		return ErrNoStore
	}
	id, _ := c.Page()
	if id == "" {
		return ErrNoPage
	}
	data, err := block.Marshal(c.Root())
	if err != nil {
		return err
	}
	if err := c.store.SavePage(ctx, id, data); err != nil {
		c.log.Error("save failed", slog.String("page", id), slog.Any("err", err))
		return fmt.Errorf("save page %s: %w", id, err)
	}
	return nil
}

// DeletePage removes the installed page after the user confirms. It reports whether
// the page was deleted.
func (c *Controller) DeletePage(ctx context.Context) (bool, error) {
	if c.store == nil {
		return false, ErrNoStore
	}
	id, name := c.Page()
	if id == "" {
		return false, ErrNoPage
	}
	if !c.notifier.Confirm(ctx, fmt.Sprintf("Delete page %q? This cannot be undone.", name)) {
		return false, nil
	}
	if err := c.store.DeletePage(ctx, id); err != nil {
		return false, fmt.Errorf("delete page %s: %w", id, err)
	}
	c.hist.Clear(id)
	root, err := c.eng.New(block.RootTemplate())
	if err != nil {
		return true, err
	}
	c.mu.Lock()
	c.page = Page{}
	c.root = root
	c.mu.Unlock()
	c.ClearSelection()
	c.publish(block.Change{Kind: block.Created, Block: root})
	return true, nil
}

// Restore installs a serialized tree without touching history. Undo and redo of
// structural edits use it.
func (c *Controller) Restore(data []byte) error {
	root, err := c.eng.Restore(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.root = root
	c.mu.Unlock()
	c.pruneSelection()
	c.publish(block.Change{Kind: block.Created, Block: root})
	return nil
}

// ---- viewport ----

// FitToContainer scales the canvas so the root width plus horizontal padding fills the
// container, then shifts it down to honour the top padding. It does nothing and
// returns false until m is ready.
func (c *Controller) FitToContainer(m Metrics) bool {
	if !m.Ready() {
		return false
	}
	scale := m.ContainerWidth / (m.CanvasWidth + c.padX*2)
	t := Transform{Scale: scale}
	if diff := m.ContainerTop - m.CanvasTop + c.padY*scale; diff != 0 {
		t.TranslateY = diff / scale
	}
	c.transform = t
	return true
}
