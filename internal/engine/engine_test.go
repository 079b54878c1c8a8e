package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagetint/internal/cssom"
)

func newEngine(t *testing.T, opts Options, deps Deps) *Engine {
	t.Helper()
	e := New(opts, deps)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestPreFilteredSelectorsScenario(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule("#a", "color", "red"),
		rule(".b", "color", "red"),
		rule("div.b.c-wrong", "color", "red"),
		rule(".z", "color", "red"),
	))
	e := newEngine(t, Options{}, Deps{})
	e.Scan(doc)

	got := e.PreFilteredSelectors(element("DIV", "a", "b", "c"))
	assert.Equal(t, []string{"#a", ".b"}, got)
}

func TestIncludePattern(t *testing.T) {
	tests := []struct {
		name     string
		el       *fakeElement
		selector string
		want     bool
	}{
		{"tag only", element("DIV", ""), "div", true},
		{"tag is case insensitive", element("DIV", ""), "DiV", true},
		{"universal", element("SPAN", ""), "*", true},
		{"other tag", element("DIV", ""), "span", false},
		{"tag prefix", element("A", ""), "abbr", false},
		{"attribute filter", element("DIV", ""), "div[title]", true},
		{"pseudo class", element("A", "", "x"), "a.x:hover", true},
		{"pseudo element", element("DIV", ""), "div::before", false},
		{"descendant last compound", element("LI", ""), "ul li", true},
		{"descendant first compound", element("UL", ""), "ul li", false},
		{"group member", element("P", "", "note"), "h1, p.note", true},
		{"unknown id", element("DIV", ""), "#x", false},
		{"own id", element("DIV", "main"), "div#main", true},
		{"hyphen suffixed id", element("DIV", "main"), "#main-nav", false},
		{"class subset", element("DIV", "", "b", "c"), ".c.b", true},
		{"foreign class", element("DIV", "", "b"), ".b.d", false},
		{"hostile class does not widen", element("DIV", "", "x)(.*"), ".y", false},
		{"hostile class is literal", element("DIV", "", "x+y"), ".x+y", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re, err := includeTemplate.Bind(includeVars(tt.el.TagName(), tt.el.ID(), tt.el.Classes()))
			require.NoError(t, err)
			assert.Equal(t, tt.want, matches(re, tt.selector))
		})
	}
}

func TestPseudoRoundTrip(t *testing.T) {
	e := newEngine(t, Options{}, Deps{})
	for _, pc := range PseudoClasses {
		for _, base := range []string{"a", "ul > li.item", "input[type=checkbox]", "#x .y"} {
			sel := base + ":" + string(pc)
			stripped, found := stripPseudo(e.pseudo[pc], sel)
			require.True(t, found, sel)
			assert.Equal(t, base, stripped)
			assert.Equal(t, sel, stripped+":"+string(pc))
		}
	}

	for _, sel := range []string{"a:hover-intent", "a:not(:hover)", ":hover", "a:focus"} {
		_, found := stripPseudo(e.pseudo[Hover], sel)
		assert.False(t, found, sel)
	}

	stripped, _ := stripPseudo(e.pseudo[Hover], "a:hover, b:hover")
	assert.Equal(t, "a, b", stripped)
}

func TestMatchedSelectorsPrunesBrokenSelectors(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule("#a", "color", "red"),
		rule("#a:unsupported", "color", "blue"),
		rule("#a.b", "color", "green"),
	))
	e := newEngine(t, Options{}, Deps{})
	e.Scan(doc)

	el := element("DIV", "a")
	el.match["#a"] = true
	el.broken["#a:unsupported"] = true

	assert.Equal(t, []string{"#a", "#a:unsupported"}, e.PreFilteredSelectors(el))
	assert.Equal(t, []string{"#a"}, e.ElementMatchedSelectors(el))
	assert.Equal(t, []string{"#a"}, e.PreFilteredSelectors(el))
	assert.Equal(t, []string{"#a"}, e.ElementMatchedSelectors(el))
	assert.Contains(t, e.Selectors(), "#a:unsupported")
}

func TestMatchedSelectorsOfPseudoElement(t *testing.T) {
	e := newEngine(t, Options{}, Deps{})
	pe := &fakePseudo{fakeElement: element("DIV", ""), selectors: []string{"div::before"}}
	assert.Equal(t, []string{"div::before"}, e.ElementMatchedSelectors(pe))
}

func TestCanHavePseudoClass(t *testing.T) {
	e := newEngine(t, Options{}, Deps{})
	el := element("A", "", "b")
	el.match["a.b"] = true
	el.broken["a.b:bogus"] = true

	candidates := []string{"a.b:hover", "c:focus", "a.b:bogus:active"}
	assert.True(t, e.CanHavePseudoClass(el, candidates, Hover))
	assert.False(t, e.CanHavePseudoClass(el, candidates, Focus))
	assert.False(t, e.CanHavePseudoClass(el, candidates, Active))
	assert.False(t, e.CanHavePseudoClass(el, candidates, PseudoClass("bogus")))
}

func TestScenarioQualityBounded(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule("a", "color", "red"),
		rule(".bg", "background-image", "url(x)"),
		rule(".sh", "text-shadow", "none"),
	))
	e := newEngine(t, Options{RulesLimit: 2}, Deps{})
	e.Scan(doc)

	assert.Equal(t, []string{"a", ".bg"}, e.Selectors())
	q, ok := e.SelectorsQuality()
	require.True(t, ok)
	// one tier dropped from the top tier 4
	assert.Equal(t, 3, q)
	assert.Equal(t, 2, e.SelectorsCount())
}

func TestQualityUndefinedBeforeScan(t *testing.T) {
	e := newEngine(t, Options{}, Deps{})
	_, ok := e.SelectorsQuality()
	assert.False(t, ok)
	assert.Zero(t, e.SelectorsCount())
}

func TestKeywordTrimming(t *testing.T) {
	t.Run("trimmed set replaces over-limit set", func(t *testing.T) {
		doc := newFakeDoc(sheet(
			rule("a", "color", "red"),
			rule("a:hover", "color", "blue"),
			rule("b", "background-color", "white"),
		))
		e := newEngine(t, Options{RulesLimit: 1}, Deps{})
		e.Scan(doc)
		q, _ := e.SelectorsQuality()
		assert.Equal(t, 0, q)
		assert.Equal(t, []string{"a:hover"}, e.Selectors())
	})
	t.Run("trimmed set over its own limit filters the current set", func(t *testing.T) {
		doc := newFakeDoc(sheet(
			rule("a:hover", "color", "blue"),
			rule("input:checked", "color", "blue"),
			rule(".Selected", "background-size", "cover"),
			rule("b", "color", "red"),
		))
		e := newEngine(t, Options{RulesLimit: 1, TrimmedRulesLimit: 2}, Deps{})
		e.Scan(doc)
		q, _ := e.SelectorsQuality()
		assert.Equal(t, 0, q)
		assert.Equal(t, []string{"a:hover", "input:checked"}, e.Selectors())
	})
}

func TestQualityIsMonotonicInLimit(t *testing.T) {
	var rules []cssom.Rule
	props := []string{"color", "fill", "background-image", "text-shadow"}
	for i := 0; i < 8; i++ {
		rules = append(rules, rule(fmt.Sprintf(".r%d", i), props[i%len(props)], "red"))
	}
	prev := -1
	for limit := 1; limit <= 10; limit++ {
		e := newEngine(t, Options{RulesLimit: limit}, Deps{})
		e.Scan(newFakeDoc(sheet(rules...)))
		q, _ := e.SelectorsQuality()
		if limit < len(rules) {
			assert.Less(t, q, 4, "limit %d", limit)
		}
		assert.GreaterOrEqual(t, q, prev, "limit %d", limit)
		assert.LessOrEqual(t, e.SelectorsCount(), limit)
		prev = q
	}
}

func TestScanIsDeterministic(t *testing.T) {
	build := func() *fakeDoc {
		var rules []cssom.Rule
		for i := 0; i < 30; i++ {
			prop := []string{"color", "stroke", "background-position", "background-size"}[i%4]
			rules = append(rules, rule(fmt.Sprintf(".c%d:hover", i), prop, "red"))
		}
		return newFakeDoc(sheet(rules[:15]...), sheet(rules[15:]...))
	}
	first := newEngine(t, Options{RulesLimit: 10}, Deps{})
	first.Scan(build())
	second := newEngine(t, Options{RulesLimit: 10}, Deps{})
	second.Scan(build())
	second.Scan(build())

	assert.Equal(t, first.Selectors(), second.Selectors())
	q1, _ := first.SelectorsQuality()
	q2, _ := second.SelectorsQuality()
	assert.Equal(t, q1, q2)
}

func TestSignature(t *testing.T) {
	assert.Equal(t, "DIV#a.b c", Signature(element("DIV", "a", "b", "c")))
	assert.Equal(t, "P#.", Signature(element("P", "")))
}
