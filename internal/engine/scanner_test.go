package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagetint/internal/cssom"
)

func TestScanClassifiesRules(t *testing.T) {
	imported := sheet(rule(".imported", "color", "red"))
	imported.href = "https://cdn.example/imported.css"

	doc := newFakeDoc(
		sheet(
			&fakeImport{sheet: imported},
			rule(".first", "background-color", "white"),
			rule(".inherits", "color", "inherit"),
			rule(".layout", "margin", "0"),
			&fakeMedia{condition: "screen", rules: []cssom.Rule{rule(".screen", "fill", "red")}},
			&fakeMedia{condition: "print", rules: []cssom.Rule{rule(".print", "color", "black")}},
		),
		&fakeSheet{ignored: true, rules: []cssom.Rule{rule(".ignored", "color", "red")}},
	)
	doc.media["screen"] = true

	e := newEngine(t, Options{}, Deps{})
	e.Scan(doc)

	// imports and media groups are queued after the sheet that holds them
	assert.Equal(t, []string{".first", ".imported", ".screen"}, e.Selectors())
}

func TestScanStyleRefs(t *testing.T) {
	named := sheet(rule(".a", "color", "red"))
	named.href = "https://site.example/a.css"
	marked := sheet(rule("body", "color", "red"))
	marked.marker = "https://cdn.example/b.css"
	irrelevant := sheet(rule(".layout", "margin", "0"))
	empty := sheet()
	empty.href = "https://site.example/empty.css"
	unnamed := sheet(rule(".x", "color", "red"), rule(".y", "margin", "0"))

	e := newEngine(t, Options{}, Deps{})
	e.Scan(newFakeDoc(named, marked, irrelevant, empty, unnamed))

	refs := e.StyleRefs()
	require.Len(t, refs, 3)
	assert.Contains(t, refs, "https://site.example/a.css")
	assert.Contains(t, refs, "https://cdn.example/b.css")
	assert.Contains(t, refs, contentHash(".x { color: red; }"))
	assert.NotContains(t, refs, "https://site.example/empty.css")
}

func TestScanContentHashIsStable(t *testing.T) {
	scan := func() []string {
		e := newEngine(t, Options{}, Deps{})
		e.Scan(newFakeDoc(sheet(rule(".x", "color", "red"), rule(".y", "fill", "blue"))))
		return e.StyleRefs()
	}
	first := scan()
	assert.Equal(t, first, scan())
	assert.Equal(t, []string{contentHash(".x { color: red; }.y { fill: blue; }")}, first)
}

func TestScanMarksTransitionElements(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule(".fade", "transition-property", "opacity, color", "transition-duration", "0s, 0.3s"),
		rule(".instant", "transition-property", "color", "transition-duration", "0s"),
		rule(".layout", "transition-property", "width", "transition-duration", "1s"),
		rule(".all", "transition-property", "all", "transition-duration", "200ms"),
	))
	fade, all := element("DIV", "", "fade"), element("DIV", "", "all")
	doc.results[".fade,.all"] = []cssom.Element{fade, all}

	e := newEngine(t, Options{}, Deps{})
	e.Scan(doc)

	assert.Equal(t, 1, doc.queryCount(".fade,.all"))
	assert.True(t, fade.hasTransition())
	assert.True(t, all.hasTransition())
	// transition rules need not be relevant
	assert.Zero(t, e.SelectorsCount())
}

func TestMediaQueryCacheIsNeverInvalidated(t *testing.T) {
	doc := newFakeDoc(sheet(&fakeMedia{condition: "(max-width: 600px)", rules: []cssom.Rule{rule(".narrow", "color", "red")}}))
	doc.media["(max-width: 600px)"] = true

	e := newEngine(t, Options{}, Deps{})
	e.Scan(doc)
	assert.Equal(t, []string{".narrow"}, e.Selectors())

	// the viewport grows; the cached answer still applies
	doc.media["(max-width: 600px)"] = false
	e.Scan(doc)
	assert.Equal(t, []string{".narrow"}, e.Selectors())
	assert.Equal(t, 1, doc.mediaCalls["(max-width: 600px)"])
}

func TestZeroDuration(t *testing.T) {
	tests := map[string]bool{
		"":          true,
		"0s":        true,
		"0s, 0ms":   true,
		"0.2s":      false,
		"0s, 1s":    false,
		"150ms":     false,
		"0":         true,
		"0s,  0s  ": true,
	}
	for in, want := range tests {
		assert.Equal(t, want, zeroDuration(in), "%q", in)
	}
}
