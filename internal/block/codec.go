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
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"blockstudio/internal/catalog"
	"blockstudio/internal/expr"
)

// Marshal encodes the tree under root as a page document.
func Marshal(root *Block) ([]byte, error) {
	return json.Marshal(root.Spec())
}

// MarshalIndent is Marshal with two-space indentation.
func MarshalIndent(root *Block) ([]byte, error) {
	return json.MarshalIndent(root.Spec(), "", "  ")
}

// Decode parses and validates a page document and instantiates its tree. An empty
// document, null, or an empty array yields a fresh root. In the legacy array form the
// first element is the root. Unknown component kinds become placeholders. Any other
// problem fails the whole load.
func (e *Engine) Decode(data []byte, cat catalog.Catalog) (*Block, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return e.New(RootTemplate())
	}
	if err := Validate(trimmed); err != nil {
		e.logger().Error("page document rejected", slog.Any("err", err))
		return nil, err
	}
	var raw any
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return e.New(RootTemplate())
		}
		raw = list[0]
	}
	spec, err := DecodeSpec(raw)
	if err != nil {
		return nil, err
	}
	return e.Load(spec, cat)
}

// Restore rebuilds a tree from a document this package marshalled. Unlike Decode it
// keeps blocks of kinds the catalog does not know, so the tree comes back exactly as
// it was serialized.
func (e *Engine) Restore(data []byte) (*Block, error) {
	return e.Decode(data, nil)
}

// Load instantiates a decoded page tree, keeping its ids.
func (e *Engine) Load(spec Spec, cat catalog.Catalog) (*Block, error) {
	if spec.Role == RoleNone && spec.ID == RootID {
		spec.Role = RoleRoot
	}
	if spec.Role != RoleRoot {
		return nil, fmt.Errorf("%w: top-level block %q is not a root", ErrMalformedTree, spec.ID)
	}
	seen := map[string]bool{}
	var missing []string
	spec, err := prepare(spec, cat, true, seen, &missing)
	if err != nil {
		e.logger().Error("page document rejected", slog.Any("err", err))
		return nil, err
	}
	for _, kind := range missing {
		e.logger().Warn("component missing", slog.String("kind", kind))
	}
	return e.New(spec)
}

// prepare checks ids and roles, swaps unknown kinds for placeholders and compiles
// function-valued props.
func prepare(s Spec, cat catalog.Catalog, top bool, seen map[string]bool, missing *[]string) (Spec, error) {
	if s.ID != "" {
		if seen[s.ID] {
			return s, fmt.Errorf("%w: duplicate id %q", ErrMalformedTree, s.ID)
		}
		seen[s.ID] = true
	}
	if !top && s.Role == RoleRoot {
		return s, fmt.Errorf("%w: nested root %q", ErrMalformedTree, s.ID)
	}
	if !top && !catalog.Known(cat, s.Kind) {
		*missing = append(*missing, s.Kind)
		p := Placeholder(s.ID, s.Kind)
		p.ParentSlotName = s.ParentSlotName
		return p, nil
	}
	if !CanHaveChildren(s.Kind) && hasBlocks(s) {
		return s, fmt.Errorf("%w: %s %q has children", ErrMalformedTree, s.Kind, s.ID)
	}
	if s.Props != nil {
		v, err := expr.DecodeValue(s.Props)
		if err != nil {
			return s, fmt.Errorf("%w: props of %q: %v", ErrMalformedTree, s.ID, err)
		}
		s.Props = v.(map[string]any)
	}
	if s.Children != nil {
		kids := make([]Spec, len(s.Children))
		for i, c := range s.Children {
			c, err := prepare(c, cat, false, seen, missing)
			if err != nil {
				return s, err
			}
			kids[i] = c
		}
		s.Children = kids
	}
	if s.Slots != nil {
		slots := make(map[string]SlotSpec, len(s.Slots))
		for name, ss := range s.Slots {
			if ss.Blocks != nil {
				blocks := make([]Spec, len(ss.Blocks))
				for i, c := range ss.Blocks {
					c, err := prepare(c, cat, false, seen, missing)
					if err != nil {
						return s, err
					}
					blocks[i] = c
				}
				ss.Blocks = blocks
			}
			slots[name] = ss
		}
		s.Slots = slots
	}
	return s, nil
}
