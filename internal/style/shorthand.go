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

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrShorthand is returned for shorthand values with more than four tokens.
var ErrShorthand = errors.New("shorthand takes 1 to 4 values")

// Box shorthands supported by SetBox/Box.
const (
	Padding = "padding"
	Margin  = "margin"
)

var sides = [4]string{"Top", "Right", "Bottom", "Left"}

// Longhands returns the four longhand keys of a box shorthand in CSS order.
func Longhands(shorthand string) [4]string {
	var out [4]string
	for i, s := range sides {
		out[i] = shorthand + s
	}
	return out
}

// SetBox expands a CSS box shorthand ("10px", "1px 2px", "1px 2px 3px", "1px 2px 3px 4px")
// into its four longhands at bp and clears the shorthand key. An empty value clears all five.
func (s *Set) SetBox(bp Breakpoint, shorthand, value string) error {
	tokens := strings.Fields(value)
	if len(tokens) > 4 {
		return fmt.Errorf("%s %q: %w", shorthand, value, ErrShorthand)
	}
	keys := Longhands(shorthand)
	s.Set(bp, shorthand, nil)
	if len(tokens) == 0 {
		for _, k := range keys {
			s.Set(bp, k, nil)
		}
		return nil
	}
	var top, right, bottom, left string
	switch len(tokens) {
	case 1:
		top, right, bottom, left = tokens[0], tokens[0], tokens[0], tokens[0]
	case 2:
		top, right, bottom, left = tokens[0], tokens[1], tokens[0], tokens[1]
	case 3:
		top, right, bottom, left = tokens[0], tokens[1], tokens[2], tokens[1]
	case 4:
		top, right, bottom, left = tokens[0], tokens[1], tokens[2], tokens[3]
	}
	for i, v := range [4]string{top, right, bottom, left} {
		s.Set(bp, keys[i], v)
	}
	return nil
}

// Box collapses the four longhands at bp back into the shortest shorthand:
// one token when all sides match, two when vertical and horizontal pairs match,
// four otherwise. Missing sides count as "0px". With no longhands set, any stored
// shorthand value is returned as-is.
func (s Set) Box(bp Breakpoint, shorthand string) string {
	keys := Longhands(shorthand)
	var vals [4]string
	found := false
	for i, k := range keys {
		v := ValueString(s.Effective(bp, k))
		if v != "" {
			found = true
		} else {
			v = "0px"
		}
		vals[i] = v
	}
	if !found {
		return ValueString(s.Effective(bp, shorthand))
	}
	top, right, bottom, left := vals[0], vals[1], vals[2], vals[3]
	switch {
	case top == right && right == bottom && bottom == left:
		return top
	case top == bottom && right == left:
		return top + " " + right
	default:
		return strings.Join(vals[:], " ")
	}
}

// SetPadding is SetBox for padding.
func (s *Set) SetPadding(bp Breakpoint, value string) error { return s.SetBox(bp, Padding, value) }

// Padding is Box for padding.
func (s Set) Padding(bp Breakpoint) string { return s.Box(bp, Padding) }

// SetMargin is SetBox for margin.
func (s *Set) SetMargin(bp Breakpoint, value string) error { return s.SetBox(bp, Margin, value) }

// Margin is Box for margin.
func (s Set) Margin(bp Breakpoint) string { return s.Box(bp, Margin) }

// PxToNumber reads a pixel length ("20px", 20, "20") as a number. Unparsable or empty
// values read as 0.
func PxToNumber(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(t, "px", "", 1)), 64)
		if err != nil || math.IsNaN(n) {
			return 0
		}
		return n
	}
	return 0
}

// NumberToPx rounds n and appends "px".
func NumberToPx(n float64) string {
	return strconv.FormatFloat(math.Round(n), 'f', -1, 64) + "px"
}
