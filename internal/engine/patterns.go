package engine

import (
	"github.com/dlclark/regexp2"

	"pagetint/internal/rx"
)

// PseudoClass is an interaction state whose rules the host observes.
type PseudoClass string

const (
	Hover   PseudoClass = "hover"
	Focus   PseudoClass = "focus"
	Active  PseudoClass = "active"
	Checked PseudoClass = "checked"
)

// PseudoClasses lists the observed interaction states in observation order.
var PseudoClasses = []PseudoClass{Hover, Focus, Active, Checked}

const (
	varTag   = "tag"
	varID    = "id"
	varClass = "class"
	varState = "state"
)

// includeTemplate matches the last compound of a selector when it can only
// refer to an element with the bound tag name, id and classes:
//
//	(?:^|\s)(?:(?:TAG)?(?:#ID)?(?:\.(?:C1|C2))*\b(?!-)|\*?)(?!\w+)(?!::)[^,.#\s]*(?=,|$)
//
// Attribute filters and pseudo classes may follow; pseudo elements may not.
var includeTemplate = rx.Compile(
	rx.Group(rx.Alt(rx.LineStart, rx.Space)),
	rx.Group(rx.Alt(
		rx.Seq(
			rx.Optional(rx.Var(varTag)),
			rx.Optional(rx.Var(varID)),
			rx.Star(rx.Var(varClass)),
			rx.WordBoundary, rx.NotAhead(rx.Minus),
		),
		rx.Optional(rx.Asterisk),
	)),
	rx.NotAhead(rx.Plus(rx.Word)),
	rx.NotAhead(rx.Repeat(2, rx.Colon)),
	rx.Star(rx.NotSet(rx.ClassComma, rx.ClassDot, rx.ClassHash, rx.ClassSpace)),
	rx.Ahead(rx.Group(rx.Alt(rx.Comma, rx.LineEnd))),
)

// pseudoTemplate captures the character before ":state" so that replacing a
// match with "$1" strips the pseudo class.
var pseudoTemplate = rx.Compile(
	rx.Capture(rx.NotSet(rx.ClassLeftParen, rx.ClassSpace)),
	rx.Colon, rx.Var(varState), rx.WordBoundary, rx.NotAhead(rx.Minus),
)

// trimmerTemplate keeps selectors that style interaction states.
var trimmerTemplate = rx.Compile(
	rx.OneOf("active", "hover", "disable", "check", "visit", "link", "focus", "select", "enable"),
)

// includeVars binds the include template to an element signature. A missing
// id or empty class list leaves its slot empty.
func includeVars(tag, id string, classes []string) rx.Vars {
	vars := rx.Vars{varTag: rx.Lit(tag), varID: nil, varClass: nil}
	if id != "" {
		vars[varID] = rx.Seq(rx.Hash, rx.Lit(id))
	}
	if len(classes) > 0 {
		vars[varClass] = rx.Seq(rx.Dot, rx.OneOf(classes...))
	}
	return vars
}

func compilePseudoPatterns() map[PseudoClass]*regexp2.Regexp {
	out := make(map[PseudoClass]*regexp2.Regexp, len(PseudoClasses))
	for _, pc := range PseudoClasses {
		out[pc] = pseudoTemplate.MustBind(rx.Vars{varState: rx.Lit(string(pc))})
	}
	return out
}

// stripPseudo removes every occurrence of the pseudo class matched by re.
func stripPseudo(re *regexp2.Regexp, selector string) (string, bool) {
	found, err := re.MatchString(selector)
	if err != nil || !found {
		return selector, false
	}
	out, err := re.Replace(selector, "$1", -1, -1)
	if err != nil {
		return selector, false
	}
	return out, true
}

func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}
