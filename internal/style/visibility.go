/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package style

// LastDisplayKey shadows the display value hidden by ToggleVisibility.
// An empty string records that the layer had no display value of its own.
const LastDisplayKey = "__last_display"

// DefaultDisplay is restored when a hidden block carries no shadow value.
const DefaultDisplay = "flex"

// IsVisible reports whether the effective display at bp is anything but "none".
func (s Set) IsVisible(bp Breakpoint) bool {
	return ValueString(s.Effective(bp, "display")) != "none"
}

// ToggleVisibility hides or re-shows the block at bp. Hiding stores the layer's own
// display value in LastDisplayKey; showing restores it and drops the shadow key, so two
// toggles leave the layer exactly as it was.
func (s *Set) ToggleVisibility(bp Breakpoint) {
	if s.IsVisible(bp) {
		s.hide(bp)
		return
	}
	s.show(bp)
}

// Hide sets display none at bp unless already hidden there.
func (s *Set) Hide(bp Breakpoint) {
	if s.IsVisible(bp) {
		s.hide(bp)
	}
}

func (s *Set) hide(bp Breakpoint) {
	l := s.Layer(bp)
	prev, ok := l["display"]
	if !ok {
		prev = ""
	}
	l[LastDisplayKey] = prev
	l["display"] = "none"
}

func (s *Set) show(bp Breakpoint) {
	l := s.Layer(bp)
	last, ok := l[LastDisplayKey]
	delete(l, LastDisplayKey)
	switch {
	case !ok:
		l["display"] = DefaultDisplay
	case isEmpty(last):
		delete(l, "display")
		// the layer inherited "none" from base; an explicit value is needed to show it
		if !s.IsVisible(bp) {
			l["display"] = DefaultDisplay
		}
	default:
		l["display"] = last
	}
	s.prune(bp)
}
