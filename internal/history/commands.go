/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package history

import (
	"encoding/json"
	"fmt"

	"blockstudio/internal/block"
	"blockstudio/internal/style"
)

// TreeCommand swaps whole serialized trees. Structural edits (add, remove, move,
// duplicate, slot changes) record one.
type TreeCommand struct {
	Name   string
	Before []byte
	After  []byte
}

// NewTreeCommand captures the tree before an edit; call Done with the edited root.
func NewTreeCommand(name string, before *block.Block) (*TreeCommand, error) {
	data, err := block.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("snapshot before %s: %w", name, err)
	}
	return &TreeCommand{Name: name, Before: data}, nil
}

// Done captures the tree after the edit.
func (c *TreeCommand) Done(after *block.Block) error {
	data, err := block.Marshal(after)
	if err != nil {
		return fmt.Errorf("snapshot after %s: %w", c.Name, err)
	}
	c.After = data
	return nil
}

func (c *TreeCommand) Apply(doc Document) error  { return doc.Restore(c.After) }
func (c *TreeCommand) Revert(doc Document) error { return doc.Restore(c.Before) }
func (c *TreeCommand) Size() int                 { return len(c.Before) + len(c.After) }
func (c *TreeCommand) Label() string             { return c.Name }

// StyleCommand restores the style set of one block. The block is looked up by id, so
// selection changes between recording and undo do not matter. Property names the
// single style property the edit wrote on Breakpoint; it is empty for edits that touch
// several properties or flip state, such as visibility toggles.
type StyleCommand struct {
	BlockID    string
	Breakpoint style.Breakpoint
	Property   string
	Before     style.Set
	After      style.Set
}

func (c *StyleCommand) Apply(doc Document) error  { return c.set(doc, c.After) }
func (c *StyleCommand) Revert(doc Document) error { return c.set(doc, c.Before) }

func (c *StyleCommand) set(doc Document, s style.Set) error {
	b := block.Find(doc.Root(), c.BlockID)
	if b == nil {
		return fmt.Errorf("%w: %s", block.ErrNotFound, c.BlockID)
	}
	b.Styles = s.Clone()
	return nil
}

func (c *StyleCommand) Size() int {
	b, _ := json.Marshal([2]style.Set{c.Before, c.After})
	return len(b) + len(c.BlockID)
}

func (c *StyleCommand) Label() string { return "style " + c.BlockID }

// Merge folds a later write of the same property, block and breakpoint into c.
func (c *StyleCommand) Merge(next Command) (Command, bool) {
	n, ok := next.(*StyleCommand)
	if !ok || c.Property == "" || n.BlockID != c.BlockID || n.Breakpoint != c.Breakpoint || n.Property != c.Property {
		return nil, false
	}
	merged := *c
	merged.After = n.After
	return &merged, true
}

// PropCommand sets or removes one prop of a block.
type PropCommand struct {
	BlockID string
	Name    string
	Old     any
	HadOld  bool
	New     any
	HasNew  bool
}

func (c *PropCommand) Apply(doc Document) error  { return c.set(doc, c.New, c.HasNew) }
func (c *PropCommand) Revert(doc Document) error { return c.set(doc, c.Old, c.HadOld) }

func (c *PropCommand) set(doc Document, v any, present bool) error {
	b := block.Find(doc.Root(), c.BlockID)
	if b == nil {
		return fmt.Errorf("%w: %s", block.ErrNotFound, c.BlockID)
	}
	if !present {
		delete(b.Props, c.Name)
		return nil
	}
	if b.Props == nil {
		b.Props = map[string]any{}
	}
	b.Props[c.Name] = v
	return nil
}

func (c *PropCommand) Size() int {
	b, _ := json.Marshal([2]any{c.Old, c.New})
	return len(b) + len(c.BlockID) + len(c.Name)
}

func (c *PropCommand) Label() string { return "prop " + c.BlockID + "." + c.Name }
