/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package expr resolves dynamic prop values.
//
// A dynamic value is a string holding one or more "{{ path }}" markers. Each marker is a
// dotted path ("user.address.city") looked up in a runtime context. Function-valued
// fields use the restricted call language in fn.go instead of executable source.
package expr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"

	applog "blockstudio/internal/log"
)

var markerRe = regexp.MustCompile(`\{\{(.*?)\}\}`)

// IsDynamic reports whether v is a string containing a "{{ ... }}" marker.
func IsDynamic(v any) bool {
	s, ok := v.(string)
	return ok && strings.Contains(s, "{{") && strings.Contains(s, "}}")
}

// Resolver evaluates dynamic values against a context. The zero value logs through the
// "expr" component logger.
type Resolver struct {
	Logger *slog.Logger
}

func (r *Resolver) logger() *slog.Logger {
	if r != nil && r.Logger != nil {
		return r.Logger
	}
	return applog.WithComponent("expr")
}

// Resolve returns v unchanged unless it is dynamic. For dynamic strings every marker is
// replaced by the looked-up value, keeping the literal text around it. A marker whose
// value is an object or array (or an explicit null) short-circuits: that value is
// returned as-is. Missing paths substitute "" and are logged. An empty result is nil.
func (r *Resolver) Resolve(ctx context.Context, v any, data any) any {
	s, ok := v.(string)
	if !ok || !IsDynamic(s) {
		return v
	}
	var b strings.Builder
	last := 0
	for _, m := range markerRe.FindAllStringSubmatchIndex(s, -1) {
		path := strings.TrimSpace(s[m[2]:m[3]])
		val, found := Lookup(data, path)
		if !found {
			r.logger().WarnContext(ctx, "dynamic expression unresolved", slog.String("expr", path))
		} else if !isPrimitive(val) {
			return val
		}
		b.WriteString(s[last:m[0]])
		if found {
			b.WriteString(primitiveString(val))
		}
		last = m[1]
	}
	b.WriteString(s[last:])
	if b.Len() == 0 {
		return nil
	}
	return b.String()
}

// ResolveProps resolves every value of props; non-dynamic values pass through.
func (r *Resolver) ResolveProps(ctx context.Context, props map[string]any, data any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = r.Resolve(ctx, v, data)
	}
	return out
}

// Lookup walks a dotted path through maps, slices (numeric segments) and structs.
// A missing or nil intermediate segment reports found=false.
func Lookup(data any, path string) (any, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, false
	}
	cur := data
	for _, seg := range strings.Split(path, ".") {
		seg = strings.TrimSpace(seg)
		if cur == nil {
			return nil, false
		}
		next, ok := child(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func child(v any, key string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		x, ok := t[key]
		return x, ok
	case map[string]string:
		x, ok := t[key]
		return x, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(t) {
			return nil, false
		}
		return t[i], true
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	case reflect.Struct, reflect.Map:
		m := normalize(rv.Interface())
		if x, ok := m[key]; ok {
			return x, true
		}
		for k, x := range m {
			if strings.EqualFold(k, key) {
				return x, true
			}
		}
	}
	return nil, false
}

// normalize turns arbitrary context values into a string-keyed map.
func normalize(data any) map[string]any {
	if m, ok := data.(map[string]any); ok {
		return m
	}
	var out map[string]any
	if err := mapstructure.Decode(data, &out); err != nil {
		return nil
	}
	return out
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

func primitiveString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case json.Number:
		return t.String()
	}
	return fmt.Sprint(v)
}
