// Package htmldom implements the cssom interfaces over a parsed HTML tree.
//
// <style> elements are parsed with douceur. <link rel=stylesheet> sheets and
// @import targets are reported unreadable, the way a content script sees
// cross-origin sheets, so their text has to be fetched and inserted with
// InsertExternalCSS. Selector matching uses cascadia.
package htmldom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pagetint/internal/cssom"
	"pagetint/internal/media"
)

const (
	// ExternalAttr tags a style element synthesized from fetched CSS with its
	// source URL.
	ExternalAttr = "tint-external"
	// IgnoreAttr opts a style or link element out of processing.
	IgnoreAttr = "tint-ignore"
)

// Options configure a Document.
type Options struct {
	// BaseURL resolves relative stylesheet and import URLs.
	BaseURL  string
	Viewport media.Viewport
	Logger   *zap.Logger
}

// Document is a cssom.Document over an *html.Node tree. It is safe for
// concurrent use.
type Document struct {
	root *html.Node
	base string
	vp   media.Viewport
	log  *zap.Logger

	mu       sync.Mutex
	sheets   map[*html.Node]*Sheet
	elements map[*html.Node]*Element
	compiled map[string]compiledSelector
}

type compiledSelector struct {
	group cascadia.SelectorGroup
	err   error
}

var _ cssom.Document = (*Document)(nil)

// New wraps an already parsed tree.
func New(root *html.Node, opts Options) *Document {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Document{
		root:     root,
		base:     opts.BaseURL,
		vp:       opts.Viewport,
		log:      log.Named("htmldom"),
		sheets:   make(map[*html.Node]*Sheet),
		elements: make(map[*html.Node]*Element),
		compiled: make(map[string]compiledSelector),
	}
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts Options) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse html: %w", err)
	}
	return New(root, opts), nil
}

// Root returns the underlying tree.
func (d *Document) Root() *html.Node { return d.root }

// BaseURL returns the URL relative references resolve against.
func (d *Document) BaseURL() string { return d.base }

// StyleSheets returns the sheets of all <style> and stylesheet <link> elements
// in document order.
func (d *Document) StyleSheets() []cssom.StyleSheet {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []cssom.StyleSheet
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Style:
				out = append(out, d.styleSheetLocked(n))
			case atom.Link:
				if s := d.linkSheetLocked(n); s != nil {
					out = append(out, s)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

func (d *Document) styleSheetLocked(n *html.Node) *Sheet {
	text := textContent(n)
	if s, ok := d.sheets[n]; ok && s.text == text {
		return s
	}
	// fetched sheets resolve their imports against their own URL
	marker := getAttr(n, ExternalAttr)
	base := d.base
	if marker != "" {
		base = marker
	}
	s := parseSheet(text, base, d.log)
	s.marker = marker
	_, s.ignored = lookupAttr(n, IgnoreAttr)
	d.sheets[n] = s
	return s
}

func (d *Document) linkSheetLocked(n *html.Node) *Sheet {
	if s, ok := d.sheets[n]; ok {
		return s
	}
	rel := strings.ToLower(getAttr(n, "rel"))
	if !containsToken(rel, "stylesheet") || containsToken(rel, "alternate") {
		return nil
	}
	if typ := strings.ToLower(strings.TrimSpace(getAttr(n, "type"))); typ != "" && typ != "text/css" {
		return nil
	}
	if m := getAttr(n, "media"); m != "" && !d.vp.Matches(m) {
		return nil
	}
	href := strings.TrimSpace(getAttr(n, "href"))
	if href == "" {
		return nil
	}
	abs := resolveAbsURL(d.base, href)
	if abs == "" {
		abs = href
	}
	s := unreadableSheet(abs)
	_, s.ignored = lookupAttr(n, IgnoreAttr)
	d.sheets[n] = s
	return s
}

// MatchMedia evaluates query against the configured viewport.
func (d *Document) MatchMedia(query string) bool {
	return d.vp.Matches(query)
}

// QueryAll returns the elements below <body> matching selector.
func (d *Document) QueryAll(selector string) ([]cssom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.compileLocked(selector)
	if err != nil {
		return nil, err
	}
	scope := d.body()
	nodes := cascadia.QueryAll(scope, m)
	out := make([]cssom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.elementLocked(n))
	}
	return out, nil
}

// Select is QueryAll returning concrete elements; it searches the whole tree.
func (d *Document) Select(selector string) ([]*Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, err := d.compileLocked(selector)
	if err != nil {
		return nil, err
	}
	nodes := cascadia.QueryAll(d.root, m)
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, d.elementLocked(n))
	}
	return out, nil
}

// Element returns the wrapper of n; wrappers are stable per node.
func (d *Document) Element(n *html.Node) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elementLocked(n)
}

func (d *Document) elementLocked(n *html.Node) *Element {
	if el, ok := d.elements[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elements[n] = el
	return el
}

// InsertExternalCSS appends a disabled <style> carrying cssText to <head>.
func (d *Document) InsertExternalCSS(url, cssText string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr: []html.Attribute{
			{Key: ExternalAttr, Val: url},
			{Key: "disabled", Val: ""},
		},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: cssText})
	parent := findElement(d.root, atom.Head)
	if parent == nil {
		parent = findElement(d.root, atom.Html)
	}
	if parent == nil {
		parent = d.root
	}
	parent.AppendChild(style)
	d.log.Debug("External CSS inserted", zap.String("url", url), zap.Int("bytes", len(cssText)))
}

// compileLocked parses selector once. Pseudo-element selectors parse but never
// match an element.
func (d *Document) compileLocked(selector string) (cascadia.Matcher, error) {
	c, ok := d.compiled[selector]
	if !ok {
		c.group, c.err = cascadia.ParseGroupWithPseudoElements(selector)
		if c.err != nil {
			c.err = fmt.Errorf("%w: %q: %v", cssom.ErrMalformedSelector, selector, c.err)
		}
		d.compiled[selector] = c
	}
	if c.err != nil {
		return nil, c.err
	}
	return elementSelectors(c.group), nil
}

// elementSelectors matches the selectors of a group that target elements.
type elementSelectors cascadia.SelectorGroup

func (g elementSelectors) Match(n *html.Node) bool {
	for _, sel := range g {
		if sel.PseudoElement() == "" && sel.Match(n) {
			return true
		}
	}
	return false
}

func (d *Document) body() *html.Node {
	if b := findElement(d.root, atom.Body); b != nil {
		return b
	}
	return d.root
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func containsToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}
