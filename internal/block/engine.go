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

	"blockstudio/internal/catalog"
	"blockstudio/internal/ident"
	applog "blockstudio/internal/log"
	"blockstudio/internal/style"
)

// DefaultDuplicateOffset is how far (px) a duplicated absolutely positioned block is
// shifted right and down.
const DefaultDuplicateOffset = 20.0

// Engine creates blocks and performs every structural edit on a tree. The zero value
// is ready to use.
type Engine struct {
	IDs             ident.Generator
	Observer        Observer
	Logger          *slog.Logger
	DuplicateOffset float64
}

func (e *Engine) ids() ident.Generator {
	if e.IDs != nil {
		return e.IDs
	}
	return ident.Default
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return applog.WithComponent("block")
}

func (e *Engine) offset() float64 {
	if e.DuplicateOffset != 0 {
		return e.DuplicateOffset
	}
	return DefaultDuplicateOffset
}

func (e *Engine) publish(kind ChangeKind, b *Block) {
	if e.Observer != nil && b != nil {
		e.Observer.BlockChanged(Change{Kind: kind, Block: b})
	}
}

func (e *Engine) duplicate(id string) error {
	e.logger().Error("duplicate block id", slog.String("id", id))
	if Strict {
		panic(fmt.Sprintf("block: duplicate id %q", id))
	}
	return fmt.Errorf("%w: %s", ErrDuplicateID, id)
}

// New instantiates spec and its whole subtree. Missing ids are generated; explicit ids
// are kept and must be unique within the subtree. Back-references of children and
// slot blocks are wired.
func (e *Engine) New(spec Spec) (*Block, error) {
	return e.build(spec, map[string]bool{}, false)
}

// newIn instantiates spec for insertion into tree. Generated ids avoid every id
// already in tree, and no block of the subtree may be a root.
func (e *Engine) newIn(tree *Block, spec Spec) (*Block, error) {
	seen := make(map[string]bool)
	Walk(tree, func(b *Block) bool {
		seen[b.id] = true
		return true
	})
	return e.build(spec, seen, true)
}

// maxIDAttempts bounds regeneration of a colliding generated id.
const maxIDAttempts = 8

func (e *Engine) build(spec Spec, seen map[string]bool, nested bool) (*Block, error) {
	if spec.Kind == "" {
		return nil, fmt.Errorf("%w: block %q has no kind", ErrMalformedTree, spec.ID)
	}
	if nested && spec.Role == RoleRoot {
		return nil, fmt.Errorf("%w: nested root %q", ErrRootProtected, spec.ID)
	}
	id := spec.ID
	if id == "" {
		id = e.ids().NewID(spec.Kind)
		for i := 1; seen[id] && i < maxIDAttempts; i++ {
			e.logger().Debug("generated id collided", slog.String("id", id))
			id = e.ids().NewID(spec.Kind)
		}
	}
	if seen[id] {
		return nil, e.duplicate(id)
	}
	seen[id] = true
	if !CanHaveChildren(spec.Kind) && hasBlocks(spec) {
		return nil, fmt.Errorf("%w: %s", ErrLeafKind, spec.Kind)
	}
	b := &Block{
		id:        id,
		Kind:      spec.Kind,
		Label:     spec.Label,
		Role:      spec.Role,
		Props:     cloneMap(spec.Props),
		Events:    cloneEvents(spec.Events),
		Styles:    spec.Styles.Clone(),
		InnerHTML: spec.InnerHTML,
	}
	if b.Label == "" {
		b.Label = b.Kind
	}
	for _, cs := range spec.Children {
		c, err := e.build(cs, seen, true)
		if err != nil {
			return nil, err
		}
		c.parent = b
		b.children = append(b.children, c)
	}
	for name, ss := range spec.Slots {
		s, _ := b.declareSlot(name)
		if ss.ID != "" {
			s.ID = ss.ID
		}
		s.text, s.isList = ss.Text, ss.IsList
		for _, cs := range ss.Blocks {
			c, err := e.build(cs, seen, true)
			if err != nil {
				return nil, err
			}
			s.blocks = append(s.blocks, c)
		}
	}
	b.InitializeSlots()
	return b, nil
}

func hasBlocks(s Spec) bool {
	if len(s.Children) > 0 {
		return true
	}
	for _, ss := range s.Slots {
		if len(ss.Blocks) > 0 {
			return true
		}
	}
	return false
}

// SpecFor returns the spec of a freshly dropped kind, carrying the catalog's
// default props.
func SpecFor(cat catalog.Catalog, kind string) Spec {
	s := Spec{Kind: kind}
	if cat == nil {
		return s
	}
	if e, ok := cat.Lookup(kind); ok {
		s.Props = cloneMap(e.DefaultProps)
		if e.Title != "" && e.Title != kind {
			s.Label = e.Title
		}
	}
	return s
}

// RootTemplate is the spec of an empty page root.
func RootTemplate() Spec {
	return Spec{
		ID:   RootID,
		Kind: "div",
		Role: RoleRoot,
		Styles: style.Set{Base: style.Map{
			"display":       "flex",
			"flexWrap":      "wrap",
			"flexDirection": "column",
			"flexShrink":    "0",
			"alignItems":    "center",
			"width":         "inherit",
			"overflowX":     "hidden",
		}},
	}
}

// Placeholder stands in for a block whose component kind is unknown. It keeps the id;
// props and styles of the unknown block are dropped and the banner names its kind.
func Placeholder(id, kind string) Spec {
	return Spec{
		ID:    id,
		Kind:  "p",
		Label: "Component missing",
		Role:  RoleRawMarkup,
		InnerHTML: fmt.Sprintf(`<div style="color:#b91c1c;padding:8px;border:1px dashed #f87171">`+
			`Component missing: %s</div>`, kind),
		Styles: style.Set{Base: style.Map{"height": "fit-content", "width": "fit-content"}},
	}
}
