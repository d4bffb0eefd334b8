/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package ident generates opaque identifiers for blocks and slots.
package ident

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Generator produces block ids. Implementations must never return the same id twice.
type Generator interface {
	NewID(kind string) string
}

// suffixLen matches the short random suffix of persisted page data.
const suffixLen = 7

// UUID derives ids from random (v4) UUIDs.
type UUID struct{}

// NewID returns "<kind>-<suffix>" where suffix is drawn from a fresh UUID.
// An empty kind yields a bare suffix prefixed with "block".
func (UUID) NewID(kind string) string {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		kind = "block"
	}
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return kind + "-" + raw[:suffixLen]
}

// Default is the generator used when callers do not inject one.
var Default Generator = UUID{}

// New is shorthand for Default.NewID.
func New(kind string) string { return Default.NewID(kind) }

// slotSep separates the owner id from the slot name in slot ids.
const slotSep = ":"

// SlotID derives a slot id from its owner and name. The result is stable, so a slot id
// can always be rebuilt from persisted data.
func SlotID(ownerID, name string) string {
	return ownerID + slotSep + name
}

// ParseSlotID splits a slot id back into owner id and slot name.
func ParseSlotID(id string) (ownerID, name string, ok bool) {
	i := strings.LastIndex(id, slotSep)
	if i <= 0 || i == len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

// Sequence is a deterministic generator for tests and fixtures.
type Sequence struct {
	n int
}

// NewID returns "<kind>-<n>" with n counting from 1.
func (s *Sequence) NewID(kind string) string {
	s.n++
	if kind == "" {
		kind = "block"
	}
	return kind + "-" + strconv.Itoa(s.n)
}
