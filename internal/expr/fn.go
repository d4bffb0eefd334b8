/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package expr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Function-valued fields see exactly two bindings.
const (
	RenderBinding  = "h"
	LibraryBinding = "ui"
)

// FuncKey marks a function-valued field in persisted JSON: {"$fn": "<source>"}.
const FuncKey = "$fn"

var (
	ErrSyntax      = errors.New("syntax error")
	ErrUnbound     = errors.New("unbound identifier")
	ErrUndefined   = errors.New("undefined member")
	ErrNotCallable = errors.New("value is not callable")
)

// RenderFunc is the render helper bound as "h".
type RenderFunc func(component any, props map[string]any, children ...any) any

// Scope supplies the two bindings a Func may reference.
type Scope struct {
	Render  RenderFunc
	Library map[string]any
}

// Func is a function-valued field in a small call language:
//
//	h(ui.Button, {label: "Save", variant: "solid"}, "child")
//	ui.icons.Check
//
// Only paths rooted at "h" or "ui", literals, objects and arrays are expressible, so a
// Func can never reach state outside its Scope.
type Func struct {
	Source string
	root   node
}

// ParseFunc compiles src. Identifier binding is checked at Eval time.
func ParseFunc(src string) (*Func, error) {
	p := &parser{lex: lexer{src: src}}
	p.next()
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.tok.text)
	}
	return &Func{Source: src, root: n}, nil
}

// Eval evaluates the function body in s.
func (f *Func) Eval(s Scope) (any, error) {
	if f == nil || f.root == nil {
		return nil, fmt.Errorf("empty function: %w", ErrSyntax)
	}
	return f.root.eval(s)
}

func (f *Func) String() string { return f.Source }

// MarshalJSON writes the tagged source form.
func (f *Func) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{FuncKey: f.Source})
}

// UnmarshalJSON reads the tagged source form and compiles it.
func (f *Func) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	src, ok := raw[FuncKey]
	if !ok {
		return fmt.Errorf("missing %s: %w", FuncKey, ErrSyntax)
	}
	g, err := ParseFunc(src)
	if err != nil {
		return err
	}
	*f = *g
	return nil
}

// DecodeValue walks a decoded JSON value and compiles every {"$fn": "..."} object
// into a *Func.
func DecodeValue(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if src, ok := t[FuncKey].(string); ok && len(t) == 1 {
			return ParseFunc(src)
		}
		out := make(map[string]any, len(t))
		for k, x := range t {
			d, err := DecodeValue(x)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = d
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			d, err := DecodeValue(x)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = d
		}
		return out, nil
	}
	return v, nil
}

// ---- evaluation ----

type node interface {
	eval(s Scope) (any, error)
}

type litNode struct{ v any }

func (n litNode) eval(Scope) (any, error) { return n.v, nil }

type pathNode struct{ parts []string }

func (n pathNode) String() string { return strings.Join(n.parts, ".") }

func (n pathNode) eval(s Scope) (any, error) {
	switch n.parts[0] {
	case RenderBinding:
		if len(n.parts) > 1 {
			return nil, fmt.Errorf("%s: %w", n, ErrUndefined)
		}
		if s.Render == nil {
			return nil, fmt.Errorf("%s: %w", RenderBinding, ErrUnbound)
		}
		return s.Render, nil
	case LibraryBinding:
		var cur any = s.Library
		for _, p := range n.parts[1:] {
			next, ok := child(cur, p)
			if !ok {
				return nil, fmt.Errorf("%s: %w", n, ErrUndefined)
			}
			cur = next
		}
		return cur, nil
	}
	return nil, fmt.Errorf("%s: %w", n.parts[0], ErrUnbound)
}

type callNode struct {
	callee pathNode
	args   []node
}

func (n callNode) eval(s Scope) (any, error) {
	fn, err := n.callee.eval(s)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(n.args))
	for i, a := range n.args {
		if args[i], err = a.eval(s); err != nil {
			return nil, err
		}
	}
	switch f := fn.(type) {
	case RenderFunc:
		var comp any
		var props map[string]any
		if len(args) > 0 {
			comp = args[0]
		}
		if len(args) > 1 && args[1] != nil {
			m, ok := args[1].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s: props must be an object: %w", RenderBinding, ErrSyntax)
			}
			props = m
		}
		var children []any
		if len(args) > 2 {
			children = args[2:]
		}
		return f(comp, props, children...), nil
	case func(...any) any:
		return f(args...), nil
	case func(...any) (any, error):
		return f(args...)
	}
	return nil, fmt.Errorf("%s: %w", n.callee, ErrNotCallable)
}

type objNode struct {
	keys []string
	vals []node
}

func (n objNode) eval(s Scope) (any, error) {
	out := make(map[string]any, len(n.keys))
	for i, k := range n.keys {
		v, err := n.vals[i].eval(s)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

type arrNode struct{ items []node }

func (n arrNode) eval(s Scope) (any, error) {
	out := make([]any, len(n.items))
	for i, it := range n.items {
		v, err := it.eval(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// ---- parsing ----

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokKind
	text string
	pos  int
}

type lexer struct {
	src string
	pos int
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && strings.ContainsRune(" \t\r\n", rune(l.src[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}
	start := l.pos
	c := l.src[l.pos]
	switch {
	case isIdentStart(c):
		for l.pos < len(l.src) && (isIdentStart(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	case isDigit(c) || (c == '-' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		l.pos++
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil
	case c == '"' || c == '\'':
		l.pos++
		var b strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != c {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
			}
			b.WriteByte(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("unterminated string at %d: %w", start, ErrSyntax)
		}
		l.pos++
		return token{kind: tokString, text: b.String(), pos: start}, nil
	case strings.IndexByte(".(),{}[]:", c) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	}
	return token{}, fmt.Errorf("unexpected character %q at %d: %w", c, start, ErrSyntax)
}

type parser struct {
	lex lexer
	tok token
	err error
}

func (p *parser) next() {
	if p.err != nil {
		return
	}
	p.tok, p.err = p.lex.next()
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%s at %d: %w", fmt.Sprintf(format, args...), p.tok.pos, ErrSyntax)
}

func (p *parser) punct(s string) bool { return p.tok.kind == tokPunct && p.tok.text == s }

func (p *parser) expect(s string) error {
	if p.err != nil {
		return p.err
	}
	if !p.punct(s) {
		return p.errorf("expected %q", s)
	}
	p.next()
	return p.err
}

func (p *parser) expr() (node, error) {
	if p.err != nil {
		return nil, p.err
	}
	switch p.tok.kind {
	case tokNumber:
		n, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, p.errorf("bad number %q", p.tok.text)
		}
		p.next()
		return litNode{v: n}, p.err
	case tokString:
		v := p.tok.text
		p.next()
		return litNode{v: v}, p.err
	case tokIdent:
		switch p.tok.text {
		case "true", "false":
			v := p.tok.text == "true"
			p.next()
			return litNode{v: v}, p.err
		case "null", "undefined":
			p.next()
			return litNode{}, p.err
		}
		return p.pathOrCall()
	case tokPunct:
		switch p.tok.text {
		case "{":
			return p.object()
		case "[":
			return p.array()
		}
	case tokEOF:
		return nil, p.errorf("unexpected end of input")
	}
	return nil, p.errorf("unexpected %q", p.tok.text)
}

func (p *parser) pathOrCall() (node, error) {
	path := pathNode{parts: []string{p.tok.text}}
	p.next()
	for p.err == nil && p.punct(".") {
		p.next()
		if p.tok.kind != tokIdent {
			return nil, p.errorf("expected identifier after '.'")
		}
		path.parts = append(path.parts, p.tok.text)
		p.next()
	}
	if p.err != nil {
		return nil, p.err
	}
	if !p.punct("(") {
		return path, nil
	}
	p.next()
	call := callNode{callee: path}
	for p.err == nil && !p.punct(")") {
		a, err := p.expr()
		if err != nil {
			return nil, err
		}
		call.args = append(call.args, a)
		if p.punct(",") {
			p.next()
		} else if !p.punct(")") {
			return nil, p.errorf("expected ',' or ')'")
		}
	}
	return call, p.expect(")")
}

func (p *parser) object() (node, error) {
	p.next()
	obj := objNode{}
	for p.err == nil && !p.punct("}") {
		if p.tok.kind != tokIdent && p.tok.kind != tokString {
			return nil, p.errorf("expected object key")
		}
		obj.keys = append(obj.keys, p.tok.text)
		p.next()
		if err := p.expect(":"); err != nil {
			return nil, err
		}
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		obj.vals = append(obj.vals, v)
		if p.punct(",") {
			p.next()
		} else if !p.punct("}") {
			return nil, p.errorf("expected ',' or '}'")
		}
	}
	return obj, p.expect("}")
}

func (p *parser) array() (node, error) {
	p.next()
	arr := arrNode{}
	for p.err == nil && !p.punct("]") {
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		arr.items = append(arr.items, v)
		if p.punct(",") {
			p.next()
		} else if !p.punct("]") {
			return nil, p.errorf("expected ',' or ']'")
		}
	}
	return arr, p.expect("]")
}
