/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package style holds the per-breakpoint style layers of a block and the rules for
// reading, writing and collapsing them.
//
// A Set has a base layer and two override layers (tablet, mobile). Override layers only
// hold properties that differ from base; anything absent there inherits the base value.
package style

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Breakpoint selects which layer an edit targets.
type Breakpoint string

const (
	Desktop Breakpoint = "desktop"
	Tablet  Breakpoint = "tablet"
	Mobile  Breakpoint = "mobile"
)

// Breakpoints lists all breakpoints from widest to narrowest.
var Breakpoints = []Breakpoint{Desktop, Tablet, Mobile}

// ParseBreakpoint accepts the breakpoint names case-insensitively.
func ParseBreakpoint(s string) (Breakpoint, error) {
	switch Breakpoint(strings.ToLower(strings.TrimSpace(s))) {
	case Desktop, "":
		return Desktop, nil
	case Tablet:
		return Tablet, nil
	case Mobile:
		return Mobile, nil
	}
	return "", fmt.Errorf("unknown breakpoint %q", s)
}

// Map is one style layer: property name to value (string or number).
type Map map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the property names in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set groups the three layers of a block.
type Set struct {
	Base   Map `json:"base,omitempty"`
	Tablet Map `json:"tablet,omitempty"`
	Mobile Map `json:"mobile,omitempty"`
}

// Clone deep-copies all layers.
func (s Set) Clone() Set {
	return Set{Base: s.Base.Clone(), Tablet: s.Tablet.Clone(), Mobile: s.Mobile.Clone()}
}

// Layer returns the raw layer for bp, creating it when missing.
func (s *Set) Layer(bp Breakpoint) Map {
	switch bp {
	case Tablet:
		if s.Tablet == nil {
			s.Tablet = Map{}
		}
		return s.Tablet
	case Mobile:
		if s.Mobile == nil {
			s.Mobile = Map{}
		}
		return s.Mobile
	default:
		if s.Base == nil {
			s.Base = Map{}
		}
		return s.Base
	}
}

func (s Set) layer(bp Breakpoint) Map {
	switch bp {
	case Tablet:
		return s.Tablet
	case Mobile:
		return s.Mobile
	default:
		return s.Base
	}
}

// Set writes prop into the layer of bp. A nil or empty value deletes the key so the
// property inherits again.
func (s *Set) Set(bp Breakpoint, prop string, value any) {
	prop = Normalize(prop)
	if prop == "" {
		return
	}
	if isEmpty(value) {
		if l := s.layer(bp); l != nil {
			delete(l, prop)
			s.prune(bp)
		}
		return
	}
	s.Layer(bp)[prop] = value
}

// prune drops the layer of bp once it holds nothing, so emptied overrides compare
// equal to never-set ones.
func (s *Set) prune(bp Breakpoint) {
	if len(s.layer(bp)) > 0 {
		return
	}
	switch bp {
	case Tablet:
		s.Tablet = nil
	case Mobile:
		s.Mobile = nil
	default:
		s.Base = nil
	}
}

// Get reads prop from the base layer.
func (s Set) Get(prop string) any {
	return s.Base[Normalize(prop)]
}

// GetAt reads prop from the raw layer of bp without inheritance.
func (s Set) GetAt(bp Breakpoint, prop string) (any, bool) {
	v, ok := s.layer(bp)[Normalize(prop)]
	return v, ok
}

// Effective reads prop for bp: the override if present, else base.
func (s Set) Effective(bp Breakpoint, prop string) any {
	prop = Normalize(prop)
	if bp != Desktop {
		if v, ok := s.layer(bp)[prop]; ok {
			return v
		}
	}
	return s.Base[prop]
}

// Resolve merges base and the bp override layer. Reserved keys are left out.
func (s Set) Resolve(bp Breakpoint) Map {
	out := Map{}
	for k, v := range s.Base {
		if !IsReserved(k) {
			out[k] = v
		}
	}
	if bp != Desktop {
		for k, v := range s.layer(bp) {
			if !IsReserved(k) {
				out[k] = v
			}
		}
	}
	return out
}

// Normalize maps hyphenated property names to camel case ("border-color" → "borderColor").
// Custom properties ("--x") and reserved keys ("__x") are kept verbatim.
func Normalize(prop string) string {
	prop = strings.TrimSpace(prop)
	if strings.HasPrefix(prop, "--") || IsReserved(prop) || !strings.Contains(prop, "-") {
		return prop
	}
	var b strings.Builder
	b.Grow(len(prop))
	upper := false
	for i := 0; i < len(prop); i++ {
		c := prop[i]
		if c == '-' && i+1 < len(prop) && prop[i+1] >= 'a' && prop[i+1] <= 'z' {
			upper = true
			continue
		}
		if upper {
			c -= 'a' - 'A'
			upper = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

// IsReserved reports whether prop is an editor-internal shadow key.
func IsReserved(prop string) bool { return strings.HasPrefix(prop, "__") }

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok && s == "" {
		return true
	}
	return false
}

// ValueString renders a style value for display or concatenation.
func ValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
