/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package block

import (
	"fmt"
	"log/slog"

	"blockstudio/internal/style"
)

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func insertAt(list []*Block, index int, b *Block) []*Block {
	i := clamp(index, len(list))
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = b
	return list
}

func (e *Engine) checkUnique(tree, sub *Block) error {
	ids := make(map[string]bool)
	Walk(tree, func(b *Block) bool {
		ids[b.id] = true
		return true
	})
	var err error
	Walk(sub, func(b *Block) bool {
		if ids[b.id] {
			err = e.duplicate(b.id)
			return false
		}
		return true
	})
	return err
}

// attach links child into parent's children (slotName == "") or into the named slot,
// switching literal slot content to a block list.
func (e *Engine) attach(parent *Block, slotName string, index int, child *Block) {
	child.parent, child.slotName = parent, slotName
	if slotName == "" {
		parent.children = insertAt(parent.children, index, child)
	} else {
		s, _ := parent.declareSlot(slotName)
		if !s.isList {
			s.text, s.isList = "", true
		}
		s.blocks = insertAt(s.blocks, index, child)
	}
	e.publish(Created, child)
	e.publish(Mutated, parent)
}

// detach unlinks b from whichever list owns it. It reports whether b was found.
func detach(b *Block) bool {
	p := b.parent
	if p == nil {
		return false
	}
	var list *[]*Block
	if b.slotName != "" {
		s := p.slots[b.slotName]
		if s == nil {
			return false
		}
		list = &s.blocks
	} else {
		list = &p.children
	}
	i := indexOf(*list, b.id)
	if i < 0 {
		return false
	}
	*list = append((*list)[:i], (*list)[i+1:]...)
	b.parent, b.slotName = nil, ""
	return true
}

// AddChild instantiates spec under parent at index (clamped; End appends). A spec
// naming a ParentSlotName goes into that slot instead.
func (e *Engine) AddChild(parent *Block, spec Spec, index int) (*Block, error) {
	if spec.ParentSlotName != "" {
		return e.InsertSlotBlock(parent, spec.ParentSlotName, spec, index)
	}
	if !CanHaveChildren(parent.Kind) {
		return nil, fmt.Errorf("%w: %s", ErrLeafKind, parent.Kind)
	}
	if spec.Role == RoleRoot {
		return nil, ErrRootProtected
	}
	child, err := e.newIn(parent.Root(), spec)
	if err != nil {
		return nil, err
	}
	e.attach(parent, "", index, child)
	return child, nil
}

// AddChildAfter inserts spec right after sibling, in the list sibling lives in. When
// sibling is not owned by parent the block is appended to parent's children.
func (e *Engine) AddChildAfter(parent *Block, spec Spec, sibling *Block) (*Block, error) {
	index, slot := End, ""
	if sibling != nil && sibling.parent == parent {
		if i := sibling.Index(); i >= 0 {
			index, slot = i+1, sibling.slotName
		}
	}
	spec.ParentSlotName = slot
	return e.AddChild(parent, spec, index)
}

// RemoveChild splices child out of parent. It is a no-op, returning false, when
// child is not owned by parent.
func (e *Engine) RemoveChild(parent, child *Block) bool {
	if parent == nil || child == nil || child.parent != parent {
		return false
	}
	if !detach(child) {
		return false
	}
	e.publish(Destroyed, child)
	e.publish(Mutated, parent)
	return true
}

// Move detaches b and reinserts it under newParent, into slotName when set. index is
// taken against the destination list after b has been removed.
func (e *Engine) Move(b, newParent *Block, slotName string, index int) error {
	switch {
	case b.IsRoot():
		return ErrRootProtected
	case newParent == nil || contains(b, newParent):
		return fmt.Errorf("%w: %s cannot contain %s", ErrInvalidMove, describe(newParent), b.id)
	case !CanHaveChildren(newParent.Kind):
		return fmt.Errorf("%w: %s", ErrLeafKind, newParent.Kind)
	}
	if b.Root() != newParent.Root() {
		if err := e.checkUnique(newParent.Root(), b); err != nil {
			return err
		}
	}
	old := b.parent
	detach(b)
	b.parent, b.slotName = newParent, slotName
	if slotName == "" {
		newParent.children = insertAt(newParent.children, index, b)
	} else {
		s, _ := newParent.declareSlot(slotName)
		if !s.isList {
			s.text, s.isList = "", true
		}
		s.blocks = insertAt(s.blocks, index, b)
	}
	if old != nil && old != newParent {
		e.publish(Mutated, old)
	}
	e.publish(Mutated, newParent)
	e.publish(Mutated, b)
	return nil
}

func describe(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	return b.id
}

// Clone deep-copies b. With fresh set every block in the copy gets a new id; otherwise
// ids are kept and the copy must not be inserted into b's tree.
func (e *Engine) Clone(b *Block, fresh bool) (*Block, error) {
	spec := b.Spec()
	spec.ParentSlotName = ""
	if fresh {
		spec = spec.WithoutIDs()
	}
	return e.New(spec)
}

// Duplicate copies b with a fresh id subtree and inserts the copy right after b. An
// absolutely positioned copy is shifted by the duplicate offset on the desktop layer,
// whichever breakpoint is active. A detached b is appended to canvasRoot instead.
// Roots cannot be duplicated.
func (e *Engine) Duplicate(b, canvasRoot *Block) (*Block, error) {
	if b.IsRoot() {
		return nil, ErrRootProtected
	}
	spec := b.Spec()
	spec.ParentSlotName = ""
	tree := b.Root()
	if b.parent == nil && canvasRoot != nil {
		tree = canvasRoot
	}
	cp, err := e.newIn(tree, spec.WithoutIDs())
	if err != nil {
		return nil, err
	}
	if cp.Style("position") == "absolute" {
		d := e.offset()
		cp.SetStyle(style.Desktop, "left", style.NumberToPx(style.PxToNumber(cp.Style("left"))+d))
		cp.SetStyle(style.Desktop, "top", style.NumberToPx(style.PxToNumber(cp.Style("top"))+d))
	}
	switch {
	case b.parent != nil:
		e.attach(b.parent, b.slotName, b.Index()+1, cp)
	case canvasRoot != nil:
		e.attach(canvasRoot, "", End, cp)
	default:
		return nil, fmt.Errorf("%w: %s has no parent", ErrNotFound, b.id)
	}
	e.logger().Debug("block duplicated", slog.String("from", b.id), slog.String("to", cp.id))
	return cp, nil
}
