// Package cssom describes the narrow view of a document that the selector engine
// needs: its attached stylesheets, their rules, and structural selector matching on
// elements.
//
// Clients provide a concrete implementation (see package htmldom). Keeping the
// engine behind these interfaces makes scanning, filtering and indexing independent
// of any particular DOM and testable with fakes.
package cssom

import "errors"

var (
	// ErrUnreadable is returned by StyleSheet.Rules when the rule list cannot be
	// read synchronously, typically for cross-origin sheets.
	ErrUnreadable = errors.New("cssom: stylesheet rules are not readable")

	// ErrMalformedSelector is returned when a selector cannot be used for
	// matching or querying.
	ErrMalformedSelector = errors.New("cssom: malformed selector")
)

// Document is the set of stylesheets attached to a page plus the capabilities
// the engine calls back into.
type Document interface {
	// StyleSheets returns the attached sheets in document order.
	StyleSheets() []StyleSheet
	// MatchMedia reports whether a media query list currently applies.
	MatchMedia(query string) bool
	// QueryAll returns the elements under the document body matching selector.
	QueryAll(selector string) ([]Element, error)
	// InsertExternalCSS attaches a disabled style element carrying cssText and
	// tagged with url as its external marker.
	InsertExternalCSS(url, cssText string)
}

// StyleSheet is one attached or imported stylesheet.
type StyleSheet interface {
	// Rules returns the rule list or ErrUnreadable.
	Rules() ([]Rule, error)
	// Href is the absolute source URL, empty for inline sheets.
	Href() string
	// ExternalMarker names the external source of an inline sheet that was
	// synthesized from fetched text.
	ExternalMarker() string
	// Ignored reports whether the owner node opted out of processing.
	Ignored() bool
}

// Rule is any CSS rule.
type Rule interface {
	CSSText() string
}

// StyleRule is a qualified rule with a selector and declarations.
type StyleRule interface {
	Rule
	SelectorText() string
	// PropertyValue returns the declared value of a longhand property or "".
	PropertyValue(name string) string
}

// ImportRule points at another stylesheet.
type ImportRule interface {
	Rule
	StyleSheet() StyleSheet
}

// ConditionalRule is a media rule group.
type ConditionalRule interface {
	Rule
	ConditionText() string
	Rules() []Rule
}

// Element is a live element of the document.
type Element interface {
	// TagName is the upper-case tag name.
	TagName() string
	ID() string
	// Classes returns the class list in declared order.
	Classes() []string
	// Matches reports whether the element matches selector. A selector that
	// cannot be used yields an error wrapping ErrMalformedSelector.
	Matches(selector string) (bool, error)
	// MarkTransition flags the element as carrying a color transition.
	MarkTransition()
}

// PseudoElement is an element stand-in for ::before/::after content whose
// matched selectors are already known.
type PseudoElement interface {
	Element
	MatchedSelectors() []string
}
