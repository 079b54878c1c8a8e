// Package rx builds regular expressions from a small typed grammar.
//
// Patterns are immutable trees of Node values. Text that comes from a document
// (ids, class names, pseudo class names) only ever enters a pattern through Lit or
// OneOf, which escape it, so a template can be bound to arbitrary page input without
// producing a malformed or widened expression.
//
// Templates may contain named Var slots. Bind substitutes nodes into the slots and
// compiles the result with regexp2, which supports the lookaround the selector
// patterns rely on.
package rx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"
)

// ErrUnboundVar is returned when a template references a slot that has no binding.
var ErrUnboundVar = errors.New("rx: unbound variable")

// Node is one element of a pattern tree.
type Node interface {
	write(b *strings.Builder, vars Vars) error
	atomic() bool
}

// Vars binds slot names to nodes. A nil node binds the slot to nothing.
type Vars map[string]Node

type token struct {
	src  string
	atom bool
}

func (t token) write(b *strings.Builder, _ Vars) error {
	b.WriteString(t.src)
	return nil
}

func (t token) atomic() bool { return t.atom }

// Fixed tokens.
var (
	LineStart    Node = token{`^`, false}
	LineEnd      Node = token{`$`, false}
	Space        Node = token{`\s`, true}
	Word         Node = token{`\w`, true}
	WordBoundary Node = token{`\b`, false}
	Minus        Node = token{`-`, true}
	Comma        Node = token{`,`, true}
	Dot          Node = token{`\.`, true}
	Hash         Node = token{`#`, true}
	Colon        Node = token{`:`, true}
	Asterisk     Node = token{`\*`, true}
)

// Class is a member of a character set.
type Class string

// Character set members.
const (
	ClassComma     Class = `,`
	ClassDot       Class = `.`
	ClassHash      Class = `#`
	ClassColon     Class = `:`
	ClassSpace     Class = `\s`
	ClassLeftParen Class = `(`
)

type lit string

func (l lit) write(b *strings.Builder, _ Vars) error {
	b.WriteString(regexp2.Escape(string(l)))
	return nil
}

func (l lit) atomic() bool { return len([]rune(string(l))) == 1 }

// Lit matches s literally.
func Lit(s string) Node { return lit(s) }

type seq []Node

func (s seq) write(b *strings.Builder, vars Vars) error {
	for _, n := range s {
		if n == nil {
			continue
		}
		if err := n.write(b, vars); err != nil {
			return err
		}
	}
	return nil
}

func (s seq) atomic() bool { return len(s) == 1 && s[0] != nil && s[0].atomic() }

// Seq matches its parts one after another.
func Seq(parts ...Node) Node { return seq(parts) }

type alt []Node

func (a alt) write(b *strings.Builder, vars Vars) error {
	for i, n := range a {
		if i > 0 {
			b.WriteByte('|')
		}
		if n == nil {
			continue
		}
		if err := n.write(b, vars); err != nil {
			return err
		}
	}
	return nil
}

func (a alt) atomic() bool { return false }

// Alt matches any one of its branches. Use it inside a group.
func Alt(branches ...Node) Node { return alt(branches) }

// OneOf matches any of the given words literally. It returns nil for an empty list.
func OneOf(words ...string) Node {
	if len(words) == 0 {
		return nil
	}
	branches := make([]Node, 0, len(words))
	for _, w := range words {
		branches = append(branches, Lit(w))
	}
	return Group(Alt(branches...))
}

type groupKind int

const (
	nonCapturing groupKind = iota
	capturing
	ahead
	notAhead
)

var groupOpen = map[groupKind]string{
	nonCapturing: "(?:",
	capturing:    "(",
	ahead:        "(?=",
	notAhead:     "(?!",
}

type group struct {
	kind  groupKind
	inner Node
}

func (g group) write(b *strings.Builder, vars Vars) error {
	b.WriteString(groupOpen[g.kind])
	if g.inner != nil {
		if err := g.inner.write(b, vars); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func (g group) atomic() bool { return true }

// Group wraps parts in a non-capturing group.
func Group(parts ...Node) Node { return group{nonCapturing, seq(parts)} }

// Capture wraps parts in a numbered capturing group.
func Capture(parts ...Node) Node { return group{capturing, seq(parts)} }

// Ahead asserts that parts follow without consuming them.
func Ahead(parts ...Node) Node { return group{ahead, seq(parts)} }

// NotAhead asserts that parts do not follow.
func NotAhead(parts ...Node) Node { return group{notAhead, seq(parts)} }

type quant struct {
	inner    Node
	min, max int // max < 0 means unbounded
}

func (q quant) write(b *strings.Builder, vars Vars) error {
	var inner strings.Builder
	if err := q.inner.write(&inner, vars); err != nil {
		return err
	}
	if inner.Len() == 0 {
		return nil
	}
	if q.inner.atomic() {
		b.WriteString(inner.String())
	} else {
		b.WriteString("(?:")
		b.WriteString(inner.String())
		b.WriteByte(')')
	}
	switch {
	case q.min == 0 && q.max == 1:
		b.WriteByte('?')
	case q.min == 0 && q.max < 0:
		b.WriteByte('*')
	case q.min == 1 && q.max < 0:
		b.WriteByte('+')
	case q.min == q.max:
		b.WriteString("{" + strconv.Itoa(q.min) + "}")
	case q.max < 0:
		b.WriteString("{" + strconv.Itoa(q.min) + ",}")
	default:
		b.WriteString("{" + strconv.Itoa(q.min) + "," + strconv.Itoa(q.max) + "}")
	}
	return nil
}

func (q quant) atomic() bool { return false }

// Optional matches parts zero or one time.
func Optional(parts ...Node) Node { return quant{seq(parts), 0, 1} }

// Star matches parts any number of times.
func Star(parts ...Node) Node { return quant{seq(parts), 0, -1} }

// Plus matches parts at least once.
func Plus(parts ...Node) Node { return quant{seq(parts), 1, -1} }

// Repeat matches parts exactly n times.
func Repeat(n int, parts ...Node) Node { return quant{seq(parts), n, n} }

type set struct {
	negated bool
	members []Class
}

func (s set) write(b *strings.Builder, _ Vars) error {
	b.WriteByte('[')
	if s.negated {
		b.WriteByte('^')
	}
	for _, m := range s.members {
		switch m {
		case ClassSpace:
			b.WriteString(string(m))
		default:
			b.WriteString(regexp2.Escape(string(m)))
		}
	}
	b.WriteByte(']')
	return nil
}

func (s set) atomic() bool { return true }

// Set matches one character from members.
func Set(members ...Class) Node { return set{false, members} }

// NotSet matches one character outside members.
func NotSet(members ...Class) Node { return set{true, members} }

type varRef string

func (v varRef) write(b *strings.Builder, vars Vars) error {
	n, ok := vars[string(v)]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnboundVar, string(v))
	}
	if n == nil {
		return nil
	}
	return n.write(b, vars)
}

// atomic is false because the bound node is unknown until rendering.
func (v varRef) atomic() bool { return false }

// Var is a named slot filled at Bind time.
func Var(name string) Node { return varRef(name) }

// Template is a compiled-once pattern tree with slots.
type Template struct {
	root Node
}

// Compile wraps the pattern tree in a reusable template.
func Compile(parts ...Node) *Template {
	return &Template{root: seq(parts)}
}

// Source renders the template to regular expression text.
func (t *Template) Source(vars Vars) (string, error) {
	var b strings.Builder
	if err := t.root.write(&b, vars); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Bind renders the template with vars and compiles it case-insensitively.
func (t *Template) Bind(vars Vars) (*regexp2.Regexp, error) {
	src, err := t.Source(vars)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(src, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("rx: compile %q: %w", src, err)
	}
	return re, nil
}

// MustBind is like Bind but panics on error. Intended for templates without
// document supplied bindings.
func (t *Template) MustBind(vars Vars) *regexp2.Regexp {
	re, err := t.Bind(vars)
	if err != nil {
		panic(err)
	}
	return re
}
