package htmldom

import (
	"strings"

	"golang.org/x/net/html"

	"pagetint/internal/cssom"
)

// Element wraps an element node of a Document.
type Element struct {
	doc        *Document
	node       *html.Node
	transition bool
}

var _ cssom.Element = (*Element)(nil)

func (e *Element) Node() *html.Node { return e.node }

func (e *Element) TagName() string { return strings.ToUpper(e.node.Data) }

func (e *Element) ID() string { return getAttr(e.node, "id") }

func (e *Element) Classes() []string { return strings.Fields(getAttr(e.node, "class")) }

func (e *Element) Matches(selector string) (bool, error) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	m, err := e.doc.compileLocked(selector)
	if err != nil {
		return false, err
	}
	return m.Match(e.node), nil
}

func (e *Element) MarkTransition() {
	e.doc.mu.Lock()
	e.transition = true
	e.doc.mu.Unlock()
}

// HasTransition reports whether MarkTransition was called.
func (e *Element) HasTransition() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.transition
}

// PseudoElement is the ::before or ::after box of an element, carrying the
// selectors already known to produce it.
type PseudoElement struct {
	*Element
	Kind      string
	Selectors []string
}

var _ cssom.PseudoElement = (*PseudoElement)(nil)

func (p *PseudoElement) MatchedSelectors() []string { return p.Selectors }
