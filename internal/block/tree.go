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

// Walk visits root and every block below it in depth-first pre-order: a block, then
// its children, then the block lists of its slots ordered by slot name. Returning
// false from fn stops the walk.
func Walk(root *Block, fn func(b *Block) bool) {
	walk(root, fn)
}

func walk(b *Block, fn func(b *Block) bool) bool {
	if b == nil {
		return true
	}
	if !fn(b) {
		return false
	}
	for _, c := range b.children {
		if !walk(c, fn) {
			return false
		}
	}
	for _, s := range b.Slots() {
		for _, c := range s.blocks {
			if !walk(c, fn) {
				return false
			}
		}
	}
	return true
}

// Find returns the block with id anywhere under root, including blocks nested in
// slot content at any depth.
func Find(root *Block, id string) *Block {
	var found *Block
	Walk(root, func(b *Block) bool {
		if b.id == id {
			found = b
			return false
		}
		return true
	})
	return found
}

// FindSlot locates a slot by its id and returns it with its owner.
func FindSlot(root *Block, slotID string) (*Block, *Slot) {
	var owner *Block
	var slot *Slot
	Walk(root, func(b *Block) bool {
		for _, s := range b.slots {
			if s.ID == slotID {
				owner, slot = b, s
				return false
			}
		}
		return true
	})
	return owner, slot
}

// Count returns the number of blocks in the tree.
func Count(root *Block) int {
	n := 0
	Walk(root, func(*Block) bool { n++; return true })
	return n
}

// IDs lists every block id in walk order.
func IDs(root *Block) []string {
	var out []string
	Walk(root, func(b *Block) bool { out = append(out, b.id); return true })
	return out
}

// contains reports whether b is anc or lies below it.
func contains(anc, b *Block) bool {
	for cur := b; cur != nil; cur = cur.parent {
		if cur == anc {
			return true
		}
	}
	return false
}
