/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package block implements the page document model: a tree of component instances
// ("blocks") with owned children, named slots and per-breakpoint styles, plus the
// structural edits that keep the tree consistent.
package block

import (
	"errors"
	"sort"

	"blockstudio/internal/catalog"
	"blockstudio/internal/style"
)

// Role tags structurally distinguished blocks.
type Role string

const (
	RoleNone      Role = ""
	RoleRoot      Role = "root"
	RoleRawMarkup Role = "rawMarkup"
)

// RootID is the id every page root carries.
const RootID = "root"

// End as an insert index appends.
const End = int(^uint(0) >> 1)

var (
	ErrDuplicateID   = errors.New("duplicate block id")
	ErrLeafKind      = errors.New("component cannot have children")
	ErrRootProtected = errors.New("operation not allowed on the root block")
	ErrNotFound      = errors.New("block not found")
	ErrMalformedTree = errors.New("malformed block tree")
	ErrInvalidMove   = errors.New("invalid move")
)

// Strict turns duplicate-id insertions into panics. Development builds and tests set it.
var Strict = false

// Event describes what a block does when one of its events fires.
type Event struct {
	Action string         `json:"action" mapstructure:"action"`
	Page   string         `json:"page,omitempty" mapstructure:"page"`
	Params map[string]any `json:"params,omitempty" mapstructure:"params"`
}

// Block is one component instance in a page tree. Kind, Label, Role, Props, Events,
// Styles and InnerHTML are plain data; ownership (children, slots, parent) is only
// changed through an Engine.
type Block struct {
	id        string
	Kind      string
	Label     string
	Role      Role
	Props     map[string]any
	Events    map[string]Event
	Styles    style.Set
	InnerHTML string

	children []*Block
	slots    map[string]*Slot
	parent   *Block
	slotName string
}

func (b *Block) ID() string { return b.id }

// Parent returns the owning block, or nil for a root or a detached block.
func (b *Block) Parent() *Block { return b.parent }

// SlotName is the slot of Parent() that owns b, or "" when b is a regular child.
func (b *Block) SlotName() string { return b.slotName }

// Children returns a copy of the child list.
func (b *Block) Children() []*Block {
	return append([]*Block(nil), b.children...)
}

func (b *Block) HasChildren() bool { return len(b.children) > 0 }

// IsRoot reports whether b is a page root.
func (b *Block) IsRoot() bool { return b != nil && b.Role == RoleRoot }

// Root walks up to the top of b's tree.
func (b *Block) Root() *Block {
	cur := b
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Description is the label, falling back to the component kind.
func (b *Block) Description() string {
	if b.Label != "" {
		return b.Label
	}
	return b.Kind
}

// Icon returns the catalog icon for b. Roots always show "Hash".
func (b *Block) Icon(cat catalog.Catalog) string {
	if b.IsRoot() {
		return "Hash"
	}
	if cat != nil {
		if e, ok := cat.Lookup(b.Kind); ok && e.Icon != "" {
			return e.Icon
		}
	}
	return "Square"
}

// Slot returns the named slot, or nil.
func (b *Block) Slot(name string) *Slot { return b.slots[name] }

// Slots lists the declared slots ordered by name.
func (b *Block) Slots() []*Slot {
	out := make([]*Slot, 0, len(b.slots))
	for _, s := range b.slots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// siblings is the list that owns b.
func (b *Block) siblings() []*Block {
	if b.parent == nil {
		return nil
	}
	if b.slotName != "" {
		if s := b.parent.slots[b.slotName]; s != nil {
			return s.blocks
		}
		return nil
	}
	return b.parent.children
}

// Index is b's position in its owning list, or -1.
func (b *Block) Index() int {
	return indexOf(b.siblings(), b.id)
}

// Sibling returns the block offset positions away in the same owning list
// (1 = next, -1 = previous), or nil.
func (b *Block) Sibling(offset int) *Block {
	list := b.siblings()
	i := indexOf(list, b.id)
	if i < 0 || i+offset < 0 || i+offset >= len(list) {
		return nil
	}
	return list[i+offset]
}

// ChildIndex returns the position of the child with id in b.children, or -1.
func (b *Block) ChildIndex(id string) int { return indexOf(b.children, id) }

func indexOf(list []*Block, id string) int {
	for i, c := range list {
		if c.id == id {
			return i
		}
	}
	return -1
}

// ---- styles ----

// SetStyle writes prop on the bp layer; nil or "" unsets it.
func (b *Block) SetStyle(bp style.Breakpoint, prop string, value any) {
	b.Styles.Set(bp, prop, value)
}

// Style reads the base layer.
func (b *Block) Style(prop string) any { return b.Styles.Get(prop) }

// StyleAt reads the raw value on one layer.
func (b *Block) StyleAt(bp style.Breakpoint, prop string) (any, bool) {
	return b.Styles.GetAt(bp, prop)
}

func (b *Block) IsVisible(bp style.Breakpoint) bool { return b.Styles.IsVisible(bp) }

// ToggleVisibility hides or reveals b on bp. Roots cannot be hidden.
func (b *Block) ToggleVisibility(bp style.Breakpoint) error {
	if b.IsRoot() {
		return ErrRootProtected
	}
	b.Styles.ToggleVisibility(bp)
	return nil
}

func (b *Block) SetPadding(bp style.Breakpoint, v string) error { return b.Styles.SetPadding(bp, v) }
func (b *Block) Padding(bp style.Breakpoint) string             { return b.Styles.Padding(bp) }
func (b *Block) SetMargin(bp style.Breakpoint, v string) error  { return b.Styles.SetMargin(bp, v) }
func (b *Block) Margin(bp style.Breakpoint) string              { return b.Styles.Margin(bp) }

// ---- leaf kinds ----

var leafKinds = map[string]bool{
	"img": true, "input": true, "textarea": true, "hr": true, "br": true, "select": true,
	"Avatar": true, "Badge": true, "Checkbox": true, "Divider": true, "Progress": true,
	"Switch": true, "TextInput": true, "Textarea": true, "Autocomplete": true, "DatePicker": true,
}

// CanHaveChildren reports whether blocks of kind may own children or slot blocks.
func CanHaveChildren(kind string) bool { return !leafKinds[kind] }
