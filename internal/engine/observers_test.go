package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagetint/internal/cssom"
)

func TestChunks(t *testing.T) {
	assert.Equal(t, []string{"a,b", "c"}, chunks([]string{"a", "b", "c"}, 2))
	assert.Equal(t, []string{"a,b"}, chunks([]string{"a", "b"}, 2))
	assert.Empty(t, chunks(nil, 2))
}

func TestObserverQueriesRunOncePerCompound(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule(".t1", "transition-property", "color", "transition-duration", "1s"),
		rule(".t2", "transition-property", "color", "transition-duration", "1s"),
		rule(".t3", "transition-property", "color", "transition-duration", "1s"),
		rule("a:hover", "color", "red"),
		rule("b:hover", "color", "red"),
		rule("a:hover", "background-color", "blue"),
		rule("input:focus", "color", "red"),
	))
	e := newEngine(t, Options{ChunkSize: 2}, Deps{})
	e.Scan(doc)
	e.Scan(doc)

	for _, q := range []string{".t1,.t2", ".t3", "a,b", "input"} {
		assert.Equal(t, 1, doc.queryCount(q), q)
	}

	e.SettingsChanged()
	e.Scan(doc)
	assert.Equal(t, 1, doc.queryCount(".t1,.t2"))
	assert.Equal(t, 2, doc.queryCount("a,b"))
	assert.Equal(t, 2, doc.queryCount("input"))
}

func TestObserverSurvivesBrokenQuery(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule("a:hover", "color", "red"),
		rule("b:hover", "color", "red"),
		rule("c:hover", "color", "red"),
	))
	doc.broken["a,b"] = true
	c := element("C", "")
	doc.results["c"] = []cssom.Element{c}

	e := newEngine(t, Options{ChunkSize: 2}, Deps{})
	var got [][]cssom.Element
	e.OnElementsForUserActionObservationFound(func(pc PseudoClass, els []cssom.Element) {
		assert.Equal(t, Hover, pc)
		got = append(got, els)
	})
	e.Scan(doc)

	require.Len(t, got, 1)
	assert.Equal(t, []cssom.Element{c}, got[0])
}

func TestUserActionListeners(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule("a:hover", "color", "red"),
		rule("input:checked", "color", "red"),
		rule("p:active", "color", "red"),
	))
	a, input := element("A", ""), element("INPUT", "")
	doc.results["a"] = []cssom.Element{a}
	doc.results["input"] = []cssom.Element{input}

	e := newEngine(t, Options{}, Deps{})
	type event struct {
		pc  PseudoClass
		els []cssom.Element
	}
	var first, second []event
	e.OnElementsForUserActionObservationFound(func(pc PseudoClass, els []cssom.Element) {
		first = append(first, event{pc, els})
	})
	remove := e.OnElementsForUserActionObservationFound(func(pc PseudoClass, els []cssom.Element) {
		// listeners run after the scan settled and may call back into the engine
		e.CanHavePseudoClass(els[0], nil, pc)
		assert.Equal(t, 3, e.SelectorsCount())
		second = append(second, event{pc, els})
	})
	e.Scan(doc)

	want := []event{{Hover, []cssom.Element{a}}, {Checked, []cssom.Element{input}}}
	assert.Equal(t, want, first)
	assert.Equal(t, want, second)

	remove()
	e.SettingsChanged()
	e.Scan(doc)
	assert.Len(t, first, 4)
	assert.Len(t, second, 2)
}

func TestSameQueryForDifferentPseudoClasses(t *testing.T) {
	doc := newFakeDoc(sheet(
		rule("a:hover", "color", "red"),
		rule("a:focus", "color", "blue"),
		rule("a:active", "color", "green"),
	))
	a := element("A", "")
	doc.results["a"] = []cssom.Element{a}

	e := newEngine(t, Options{}, Deps{})
	type event struct {
		pc  PseudoClass
		els []cssom.Element
	}
	var got []event
	e.OnElementsForUserActionObservationFound(func(pc PseudoClass, els []cssom.Element) {
		got = append(got, event{pc, els})
	})
	e.Scan(doc)
	e.Scan(doc)

	want := []event{
		{Hover, []cssom.Element{a}},
		{Focus, []cssom.Element{a}},
		{Active, []cssom.Element{a}},
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 1, doc.queryCount("a"))
}
