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
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"blockstudio/internal/style"
)

// Spec is the serialisable shape of a block and its subtree. It is both the persisted
// form and the input to Engine.New. Parent pointers never appear in it.
type Spec struct {
	ID             string              `json:"id,omitempty"`
	Kind           string              `json:"kind"`
	Label          string              `json:"label,omitempty"`
	Role           Role                `json:"role,omitempty"`
	Props          map[string]any      `json:"props,omitempty"`
	Events         map[string]Event    `json:"events,omitempty"`
	Styles         style.Set           `json:"styles"`
	InnerHTML      string              `json:"innerHTML,omitempty"`
	Children       []Spec              `json:"children,omitempty"`
	Slots          map[string]SlotSpec `json:"slots,omitempty"`
	ParentSlotName string              `json:"parentSlotName,omitempty"`
}

// SlotSpec is a slot's persisted form. Content is a JSON string for markup or an
// array for blocks.
type SlotSpec struct {
	ID     string
	Text   string
	Blocks []Spec
	IsList bool
}

type slotJSON struct {
	ID      string          `json:"id,omitempty"`
	Content json.RawMessage `json:"content"`
}

func (s SlotSpec) MarshalJSON() ([]byte, error) {
	var content any = s.Text
	if s.IsList {
		blocks := s.Blocks
		if blocks == nil {
			blocks = []Spec{}
		}
		content = blocks
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(slotJSON{ID: s.ID, Content: raw})
}

func (s *SlotSpec) UnmarshalJSON(data []byte) error {
	var j slotJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*s = SlotSpec{ID: j.ID}
	if len(j.Content) == 0 || string(j.Content) == "null" {
		return nil
	}
	if j.Content[0] == '[' {
		s.IsList = true
		return json.Unmarshal(j.Content, &s.Blocks)
	}
	return json.Unmarshal(j.Content, &s.Text)
}

// Spec snapshots b and its subtree.
func (b *Block) Spec() Spec {
	s := Spec{
		ID:             b.id,
		Kind:           b.Kind,
		Label:          b.Label,
		Role:           b.Role,
		Props:          cloneMap(b.Props),
		Events:         cloneEvents(b.Events),
		Styles:         b.Styles.Clone(),
		InnerHTML:      b.InnerHTML,
		ParentSlotName: b.slotName,
	}
	for _, c := range b.children {
		s.Children = append(s.Children, c.Spec())
	}
	if len(b.slots) > 0 {
		s.Slots = make(map[string]SlotSpec, len(b.slots))
		for name, sl := range b.slots {
			ss := SlotSpec{ID: sl.ID, Text: sl.text, IsList: sl.isList}
			for _, c := range sl.blocks {
				ss.Blocks = append(ss.Blocks, c.Spec())
			}
			s.Slots[name] = ss
		}
	}
	return s
}

// WithoutIDs returns a copy of s with every block and slot id cleared, so that
// instantiating it produces a fresh identity subtree.
func (s Spec) WithoutIDs() Spec {
	s.ID = ""
	if s.Children != nil {
		kids := make([]Spec, len(s.Children))
		for i, c := range s.Children {
			kids[i] = c.WithoutIDs()
		}
		s.Children = kids
	}
	if s.Slots != nil {
		slots := make(map[string]SlotSpec, len(s.Slots))
		for name, sl := range s.Slots {
			sl.ID = ""
			if sl.Blocks != nil {
				blocks := make([]Spec, len(sl.Blocks))
				for i, c := range sl.Blocks {
					blocks[i] = c.WithoutIDs()
				}
				sl.Blocks = blocks
			}
			slots[name] = sl
		}
		s.Slots = slots
	}
	return s
}

// DecodeSpec turns a loosely typed payload (a drop from the shell, a decoded JSON
// object) into a Spec. Keys follow the persisted JSON names.
func DecodeSpec(input any) (Spec, error) {
	m, ok := input.(map[string]any)
	if !ok {
		return Spec{}, fmt.Errorf("%w: block must be an object, got %T", ErrMalformedTree, input)
	}
	flat := make(map[string]any, len(m))
	for k, v := range m {
		if k != "children" && k != "slots" {
			flat[k] = v
		}
	}
	var s Spec
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &s,
	})
	if err != nil {
		return Spec{}, err
	}
	if err := dec.Decode(flat); err != nil {
		return Spec{}, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if raw, ok := m["children"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return Spec{}, fmt.Errorf("%w: children of %q must be a list", ErrMalformedTree, s.ID)
		}
		for _, item := range list {
			c, err := DecodeSpec(item)
			if err != nil {
				return Spec{}, err
			}
			s.Children = append(s.Children, c)
		}
	}
	if raw, ok := m["slots"]; ok && raw != nil {
		slots, ok := raw.(map[string]any)
		if !ok {
			return Spec{}, fmt.Errorf("%w: slots of %q must be an object", ErrMalformedTree, s.ID)
		}
		s.Slots = make(map[string]SlotSpec, len(slots))
		for name, v := range slots {
			ss, err := decodeSlotSpec(v)
			if err != nil {
				return Spec{}, fmt.Errorf("slot %q: %w", name, err)
			}
			s.Slots[name] = ss
		}
	}
	return s, nil
}

func decodeSlotSpec(v any) (SlotSpec, error) {
	switch t := v.(type) {
	case string:
		return SlotSpec{Text: t}, nil
	case []any:
		return decodeSlotBlocks(SlotSpec{}, t)
	case map[string]any:
		ss := SlotSpec{}
		ss.ID, _ = t["id"].(string)
		switch c := t["content"].(type) {
		case nil:
		case string:
			ss.Text = c
		case []any:
			return decodeSlotBlocks(ss, c)
		default:
			return SlotSpec{}, fmt.Errorf("%w: slot content must be text or a list", ErrMalformedTree)
		}
		return ss, nil
	}
	return SlotSpec{}, fmt.Errorf("%w: slot must be an object", ErrMalformedTree)
}

func decodeSlotBlocks(ss SlotSpec, items []any) (SlotSpec, error) {
	ss.IsList = true
	for _, item := range items {
		c, err := DecodeSpec(item)
		if err != nil {
			return SlotSpec{}, err
		}
		ss.Blocks = append(ss.Blocks, c)
	}
	return ss, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	}
	return v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneEvents(m map[string]Event) map[string]Event {
	if m == nil {
		return nil
	}
	out := make(map[string]Event, len(m))
	for k, v := range m {
		v.Params = cloneMap(v.Params)
		out[k] = v
	}
	return out
}
