/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"errors"
	"log/slog"

	"blockstudio/internal/block"
	"blockstudio/internal/history"
	"blockstudio/internal/style"
)

var errNoop = errors.New("nothing changed")

func (c *Controller) pageID() string {
	id, _ := c.Page()
	return id
}

// treeEdit runs fn between two tree snapshots and records the pair. Nothing is
// recorded when fn fails or reports errNoop.
func (c *Controller) treeEdit(name string, fn func() error) error {
	if c.Settling() {
		return ErrSettling
	}
	cmd, err := history.NewTreeCommand(name, c.Root())
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	if err := cmd.Done(c.Root()); err != nil {
		return err
	}
	c.hist.Record(c.pageID(), cmd)
	return nil
}

// styleEdit records the style change fn makes to b. prop names the one property fn
// writes on the active breakpoint; repeated writes of it may coalesce. Pass "" when fn
// touches anything else.
func (c *Controller) styleEdit(b *block.Block, prop string, fn func() error) error {
	if c.Settling() {
		return ErrSettling
	}
	before := b.Styles.Clone()
	if err := fn(); err != nil {
		b.Styles = before
		return err
	}
	c.hist.Record(c.pageID(), &history.StyleCommand{
		BlockID:    b.ID(),
		Breakpoint: c.breakpoint,
		Property:   prop,
		Before:     before,
		After:      b.Styles.Clone(),
	})
	c.publish(block.Change{Kind: block.Mutated, Block: b})
	return nil
}

// AddChild inserts a new block under parent and selects it.
func (c *Controller) AddChild(parent *block.Block, spec block.Spec, index int) (*block.Block, error) {
	var added *block.Block
	err := c.treeEdit("add "+spec.Kind, func() (err error) {
		added, err = c.eng.AddChild(parent, spec, index)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.SelectBlock(added, false)
	return added, nil
}

// AddChildAfter inserts a new block right after sibling and selects it.
func (c *Controller) AddChildAfter(parent *block.Block, spec block.Spec, sibling *block.Block) (*block.Block, error) {
	var added *block.Block
	err := c.treeEdit("add "+spec.Kind, func() (err error) {
		added, err = c.eng.AddChildAfter(parent, spec, sibling)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.SelectBlock(added, false)
	return added, nil
}

// InsertSlotBlock adds a block to a slot of b and selects it.
func (c *Controller) InsertSlotBlock(b *block.Block, slot string, spec block.Spec, index int) (*block.Block, error) {
	var added *block.Block
	err := c.treeEdit("slot "+slot, func() (err error) {
		added, err = c.eng.InsertSlotBlock(b, slot, spec, index)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.SelectBlock(added, false)
	return added, nil
}

// SetSlotText replaces a slot's content with markup.
func (c *Controller) SetSlotText(b *block.Block, slot, text string) error {
	err := c.treeEdit("slot "+slot, func() error {
		c.eng.SetSlotText(b, slot, text)
		return nil
	})
	if err == nil {
		c.pruneSelection()
	}
	return err
}

func (c *Controller) AddSlot(b *block.Block, slot string) error {
	return ignoreNoop(c.treeEdit("add slot "+slot, func() error {
		if b.Slot(slot) != nil {
			return errNoop
		}
		c.eng.AddSlot(b, slot)
		return nil
	}))
}

func (c *Controller) RemoveSlot(b *block.Block, slot string) error {
	err := c.treeEdit("remove slot "+slot, func() error {
		if b.Slot(slot) == nil {
			return errNoop
		}
		c.eng.RemoveSlot(b, slot)
		return nil
	})
	if err == nil {
		c.pruneSelection()
	}
	return ignoreNoop(err)
}

// Move reparents b.
func (c *Controller) Move(b, newParent *block.Block, slot string, index int) error {
	if b.IsRoot() {
		c.warn("Cannot move the root block")
		return block.ErrRootProtected
	}
	return c.treeEdit("move "+b.ID(), func() error {
		return c.eng.Move(b, newParent, slot, index)
	})
}

// Duplicate copies b next to itself and selects the copy. Roots are refused with a
// warning.
func (c *Controller) Duplicate(b *block.Block) (*block.Block, error) {
	if b.IsRoot() {
		c.warn("Cannot duplicate the root block")
		return nil, nil
	}
	var cp *block.Block
	err := c.treeEdit("duplicate "+b.ID(), func() (err error) {
		cp, err = c.eng.Duplicate(b, c.Root())
		return err
	})
	if err != nil {
		return nil, err
	}
	c.SelectBlock(cp, false)
	return cp, nil
}

// RemoveBlock deletes b on the desktop breakpoint or when forced. On narrower
// breakpoints it only hides b there, leaving the desktop layout alone. Afterwards the
// next sibling, if any, is selected. Roots are refused with a warning. It reports
// whether anything changed.
func (c *Controller) RemoveBlock(b *block.Block, force bool) bool {
	if b == nil || c.Settling() {
		return false
	}
	if b.IsRoot() {
		c.warn("Cannot delete the root block")
		return false
	}
	parent := b.Parent()
	if parent == nil {
		return false
	}
	next := b.Sibling(1)
	var err error
	if c.breakpoint == style.Desktop || force {
		err = c.treeEdit("remove "+b.ID(), func() error {
			if !c.eng.RemoveChild(parent, b) {
				return errNoop
			}
			return nil
		})
		if err == nil {
			c.pruneSelection()
		}
	} else {
		if !b.IsVisible(c.breakpoint) {
			return false
		}
		err = c.styleEdit(b, "", func() error {
			b.Styles.Hide(c.breakpoint)
			return nil
		})
	}
	if err != nil {
		if !errors.Is(err, errNoop) {
			c.log.Error("remove failed", slog.String("block", b.ID()), slog.Any("err", err))
		}
		return false
	}
	if next != nil {
		c.SelectBlock(next, false)
	}
	return true
}

// DeleteSelection removes every selected block and clears the selection.
func (c *Controller) DeleteSelection(force bool) int {
	n := 0
	for _, id := range c.SelectedIDs() {
		if b := c.Find(id); b != nil && c.RemoveBlock(b, force) {
			n++
		}
	}
	c.ClearSelection()
	return n
}

// DuplicateSelection duplicates the selected block when exactly one is selected.
func (c *Controller) DuplicateSelection() (*block.Block, error) {
	sel := c.Selection()
	if len(sel) != 1 {
		return nil, nil
	}
	return c.Duplicate(sel[0])
}

// ---- styles and props ----

// SetStyle writes prop on the active breakpoint's layer.
func (c *Controller) SetStyle(b *block.Block, prop string, value any) error {
	return c.styleEdit(b, prop, func() error {
		b.SetStyle(c.breakpoint, prop, value)
		return nil
	})
}

// Style reads prop from the base layer.
func (c *Controller) Style(b *block.Block, prop string) any { return b.Style(prop) }

// ToggleVisibility flips b's visibility on the active breakpoint.
func (c *Controller) ToggleVisibility(b *block.Block) error {
	if b.IsRoot() {
		c.warn("Cannot hide the root block")
		return nil
	}
	return c.styleEdit(b, "", func() error { return b.ToggleVisibility(c.breakpoint) })
}

func (c *Controller) SetPadding(b *block.Block, v string) error {
	return c.styleEdit(b, "", func() error { return b.SetPadding(c.breakpoint, v) })
}

func (c *Controller) SetMargin(b *block.Block, v string) error {
	return c.styleEdit(b, "", func() error { return b.SetMargin(c.breakpoint, v) })
}

// SetProp sets a prop and records it.
func (c *Controller) SetProp(b *block.Block, name string, value any) error {
	if c.Settling() {
		return ErrSettling
	}
	old, had := b.Props[name]
	if b.Props == nil {
		b.Props = map[string]any{}
	}
	b.Props[name] = value
	c.hist.Record(c.pageID(), &history.PropCommand{BlockID: b.ID(), Name: name, Old: old, HadOld: had, New: value, HasNew: true})
	c.publish(block.Change{Kind: block.Mutated, Block: b})
	return nil
}

// DeleteProp removes a prop and records it. Missing props are ignored.
func (c *Controller) DeleteProp(b *block.Block, name string) error {
	if c.Settling() {
		return ErrSettling
	}
	old, had := b.Props[name]
	if !had {
		return nil
	}
	delete(b.Props, name)
	c.hist.Record(c.pageID(), &history.PropCommand{BlockID: b.ID(), Name: name, Old: old, HadOld: true})
	c.publish(block.Change{Kind: block.Mutated, Block: b})
	return nil
}

// ---- history ----

func (c *Controller) CanUndo() bool { return c.hist.CanUndo(c.pageID()) }
func (c *Controller) CanRedo() bool { return c.hist.CanRedo(c.pageID()) }

// Undo reverts the last edit of the installed page. Block pointers taken before a
// structural undo are stale afterwards; look blocks up again by id.
func (c *Controller) Undo() (bool, error) {
	if c.Settling() || !c.CanUndo() {
		return false, nil
	}
	ok, err := c.hist.Undo(c.pageID(), c)
	if ok {
		c.pruneSelection()
		c.publish(block.Change{Kind: block.Mutated, Block: c.Root()})
	}
	return ok, err
}

// Redo re-applies the last undone edit.
func (c *Controller) Redo() (bool, error) {
	if c.Settling() || !c.CanRedo() {
		return false, nil
	}
	ok, err := c.hist.Redo(c.pageID(), c)
	if ok {
		c.pruneSelection()
		c.publish(block.Change{Kind: block.Mutated, Block: c.Root()})
	}
	return ok, err
}

func ignoreNoop(err error) error {
	if errors.Is(err, errNoop) {
		return nil
	}
	return err
}
