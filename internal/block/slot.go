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

import "blockstudio/internal/ident"

// Slot is a named content region on a block. Its content is either literal markup
// or an owned list of blocks; never both.
type Slot struct {
	Name    string
	ID      string
	OwnerID string

	text   string
	blocks []*Block
	isList bool
}

// Text returns the literal markup, or "" for block content.
func (s *Slot) Text() string { return s.text }

// IsList reports whether the slot holds blocks rather than markup.
func (s *Slot) IsList() bool { return s.isList }

// Blocks returns a copy of the owned block list.
func (s *Slot) Blocks() []*Block { return append([]*Block(nil), s.blocks...) }

// InitializeSlots repairs slot bookkeeping on b: deterministic ids, owner ids and the
// back-references of every slot block.
func (b *Block) InitializeSlots() {
	for name, s := range b.slots {
		s.Name = name
		if s.ID == "" {
			s.ID = ident.SlotID(b.id, name)
		}
		s.OwnerID = b.id
		for _, c := range s.blocks {
			c.parent = b
			c.slotName = name
		}
	}
}

// SlotEditable reports whether the named slot can be edited as free text.
func (b *Block) SlotEditable(name string) bool {
	s := b.slots[name]
	return !b.IsRoot() && s != nil && s.ID != "" && !s.isList
}

func (b *Block) declareSlot(name string) (*Slot, bool) {
	if s, ok := b.slots[name]; ok {
		return s, false
	}
	if b.slots == nil {
		b.slots = map[string]*Slot{}
	}
	s := &Slot{Name: name, ID: ident.SlotID(b.id, name), OwnerID: b.id}
	b.slots[name] = s
	return s, true
}

// AddSlot declares an empty slot on b unless one exists under name.
func (e *Engine) AddSlot(b *Block, name string) *Slot {
	s, created := b.declareSlot(name)
	if created {
		e.publish(Mutated, b)
	}
	return s
}

// SetSlotText replaces the content of the named slot with literal markup, discarding
// any blocks it held. The slot is declared if needed.
func (e *Engine) SetSlotText(b *Block, name, text string) {
	s, _ := b.declareSlot(name)
	dropped := s.blocks
	s.blocks, s.isList, s.text = nil, false, text
	for _, c := range dropped {
		c.parent, c.slotName = nil, ""
		e.publish(Destroyed, c)
	}
	e.publish(Mutated, b)
}

// InsertSlotBlock instantiates spec into the named slot at index (clamped; End appends).
// Literal content is discarded when the slot switches to a block list.
func (e *Engine) InsertSlotBlock(b *Block, name string, spec Spec, index int) (*Block, error) {
	if !CanHaveChildren(b.Kind) {
		return nil, ErrLeafKind
	}
	if spec.Role == RoleRoot {
		return nil, ErrRootProtected
	}
	spec.ParentSlotName = ""
	child, err := e.newIn(b.Root(), spec)
	if err != nil {
		return nil, err
	}
	e.attach(b, name, index, child)
	return child, nil
}

// RemoveSlot deletes the slot and everything it holds.
func (e *Engine) RemoveSlot(b *Block, name string) {
	s, ok := b.slots[name]
	if !ok {
		return
	}
	delete(b.slots, name)
	for _, c := range s.blocks {
		c.parent, c.slotName = nil, ""
		e.publish(Destroyed, c)
	}
	e.publish(Mutated, b)
}
