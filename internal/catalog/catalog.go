/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package catalog describes the components a block may be an instance of: display
// names, icons, named slots and the props a freshly dropped instance starts with.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	applog "blockstudio/internal/log"
)

//go:embed components.yaml
var builtin []byte

// Entry describes one component.
type Entry struct {
	Name         string         `yaml:"name"`
	Title        string         `yaml:"title"`
	Icon         string         `yaml:"icon"`
	Slots        []string       `yaml:"slots"`
	DefaultProps map[string]any `yaml:"props"`
	Leaf         bool           `yaml:"leaf"`
	HTML         bool           `yaml:"html"`
}

// HasSlot reports whether the component declares the named slot.
func (e Entry) HasSlot(name string) bool {
	for _, s := range e.Slots {
		if s == name {
			return true
		}
	}
	return false
}

// Catalog resolves component kinds.
type Catalog interface {
	Lookup(kind string) (Entry, bool)
}

// Static is a Catalog backed by an in-memory table.
type Static struct {
	entries map[string]Entry
}

type file struct {
	Components []Entry `yaml:"components"`
}

// Load parses a YAML component list.
func Load(data []byte) (*Static, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Static{entries: make(map[string]Entry, len(f.Components))}
	for i, e := range f.Components {
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			return nil, fmt.Errorf("component %d: %w", i, errors.New("name is required"))
		}
		if _, dup := c.entries[e.Name]; dup {
			return nil, fmt.Errorf("component %q declared twice", e.Name)
		}
		if e.Title == "" {
			e.Title = e.Name
		}
		c.entries[e.Name] = e
	}
	return c, nil
}

var (
	defaultOnce sync.Once
	defaultCat  *Static
)

// Default returns the built-in catalog. It panics if the embedded table is broken.
func Default() *Static {
	defaultOnce.Do(func() {
		c, err := Load(builtin)
		if err != nil {
			panic(err)
		}
		applog.WithComponent("catalog").Debug("catalog loaded", slog.Int("components", len(c.entries)))
		defaultCat = c
	})
	return defaultCat
}

// Lookup returns the entry for kind.
func (c *Static) Lookup(kind string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.entries[kind]
	return e, ok
}

// Names lists all component names, sorted.
func (c *Static) Names() []string {
	out := make([]string, 0, len(c.entries))
	for n := range c.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Known reports whether kind is in cat. A nil catalog knows every kind.
func Known(cat Catalog, kind string) bool {
	if cat == nil {
		return true
	}
	_, ok := cat.Lookup(kind)
	return ok
}
