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

// ChangeKind classifies a published block change.
type ChangeKind int

const (
	Created ChangeKind = iota + 1
	Mutated
	Destroyed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Mutated:
		return "mutated"
	case Destroyed:
		return "destroyed"
	}
	return "unknown"
}

// Change is delivered synchronously after the edit that caused it has completed.
type Change struct {
	Kind  ChangeKind
	Block *Block
}

// Observer receives block changes. Views re-render from it; they must not edit the
// tree from inside BlockChanged.
type Observer interface {
	BlockChanged(c Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(c Change)

func (f ObserverFunc) BlockChanged(c Change) { f(c) }

// Recorder is an Observer that keeps every change it sees.
type Recorder struct {
	Changes []Change
}

func (r *Recorder) BlockChanged(c Change) { r.Changes = append(r.Changes, c) }

// Kinds returns "kind:id" pairs for quick assertions.
func (r *Recorder) Kinds() []string {
	out := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		out[i] = c.Kind.String() + ":" + c.Block.ID()
	}
	return out
}

// Reset forgets recorded changes.
func (r *Recorder) Reset() { r.Changes = nil }
