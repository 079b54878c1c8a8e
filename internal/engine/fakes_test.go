package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pagetint/internal/cssom"
	"pagetint/internal/store"
)

type fakeDoc struct {
	mu         sync.Mutex
	sheets     []cssom.StyleSheet
	media      map[string]bool
	mediaCalls map[string]int
	queries    map[string]int
	results    map[string][]cssom.Element
	broken     map[string]bool
	inserted   []insertedCSS
}

type insertedCSS struct{ url, text string }

func newFakeDoc(sheets ...cssom.StyleSheet) *fakeDoc {
	return &fakeDoc{
		sheets:     sheets,
		media:      map[string]bool{},
		mediaCalls: map[string]int{},
		queries:    map[string]int{},
		results:    map[string][]cssom.Element{},
		broken:     map[string]bool{},
	}
}

func (d *fakeDoc) StyleSheets() []cssom.StyleSheet {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]cssom.StyleSheet(nil), d.sheets...)
}

func (d *fakeDoc) MatchMedia(q string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mediaCalls[q]++
	return d.media[q]
}

func (d *fakeDoc) QueryAll(sel string) ([]cssom.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries[sel]++
	if d.broken[sel] {
		return nil, fmt.Errorf("%w: %s", cssom.ErrMalformedSelector, sel)
	}
	return d.results[sel], nil
}

func (d *fakeDoc) InsertExternalCSS(url, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inserted = append(d.inserted, insertedCSS{url, text})
	d.sheets = append(d.sheets, &fakeSheet{marker: url, rules: []cssom.Rule{rule("body", "color", "red")}})
}

func (d *fakeDoc) queryCount(sel string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queries[sel]
}

func (d *fakeDoc) insertions() []insertedCSS {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]insertedCSS(nil), d.inserted...)
}

type fakeSheet struct {
	href       string
	marker     string
	ignored    bool
	unreadable bool
	rules      []cssom.Rule
}

func (s *fakeSheet) Rules() ([]cssom.Rule, error) {
	if s.unreadable {
		return nil, cssom.ErrUnreadable
	}
	return s.rules, nil
}

func (s *fakeSheet) Href() string           { return s.href }
func (s *fakeSheet) ExternalMarker() string { return s.marker }
func (s *fakeSheet) Ignored() bool          { return s.ignored }

func sheet(rules ...cssom.Rule) *fakeSheet { return &fakeSheet{rules: rules} }

type fakeRule struct {
	selector string
	props    map[string]string
}

// rule builds a style rule from a selector and property/value pairs.
func rule(selector string, kv ...string) *fakeRule {
	r := &fakeRule{selector: selector, props: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		r.props[kv[i]] = kv[i+1]
	}
	return r
}

func (r *fakeRule) SelectorText() string             { return r.selector }
func (r *fakeRule) PropertyValue(name string) string { return r.props[name] }

func (r *fakeRule) CSSText() string {
	keys := make([]string, 0, len(r.props))
	for k := range r.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(r.selector + " {")
	for _, k := range keys {
		b.WriteString(" " + k + ": " + r.props[k] + ";")
	}
	b.WriteString(" }")
	return b.String()
}

type fakeImport struct{ sheet cssom.StyleSheet }

func (r *fakeImport) CSSText() string              { return "@import;" }
func (r *fakeImport) StyleSheet() cssom.StyleSheet { return r.sheet }

type fakeMedia struct {
	condition string
	rules     []cssom.Rule
}

func (r *fakeMedia) CSSText() string       { return "@media " + r.condition }
func (r *fakeMedia) ConditionText() string { return r.condition }
func (r *fakeMedia) Rules() []cssom.Rule   { return r.rules }

type fakeElement struct {
	tag, id string
	classes []string
	match   map[string]bool
	broken  map[string]bool

	mu     sync.Mutex
	marked bool
}

func element(tag, id string, classes ...string) *fakeElement {
	return &fakeElement{tag: tag, id: id, classes: classes, match: map[string]bool{}, broken: map[string]bool{}}
}

func (e *fakeElement) TagName() string   { return e.tag }
func (e *fakeElement) ID() string        { return e.id }
func (e *fakeElement) Classes() []string { return e.classes }

func (e *fakeElement) Matches(sel string) (bool, error) {
	if e.broken[sel] {
		return false, fmt.Errorf("%w: %s", cssom.ErrMalformedSelector, sel)
	}
	return e.match[sel], nil
}

func (e *fakeElement) MarkTransition() {
	e.mu.Lock()
	e.marked = true
	e.mu.Unlock()
}

func (e *fakeElement) hasTransition() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marked
}

type fakePseudo struct {
	*fakeElement
	selectors []string
}

func (p *fakePseudo) MatchedSelectors() []string { return p.selectors }

type fetcherFunc func(ctx context.Context, url string) (string, error)

func (f fetcherFunc) Text(ctx context.Context, url string) (string, error) { return f(ctx, url) }

// countingStore counts writes on top of a memory store.
type countingStore struct {
	*store.Memory
	mu   sync.Mutex
	sets int
}

func (s *countingStore) Set(k, v string) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.Memory.Set(k, v)
}

func (s *countingStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}
