package main

import (
	"fmt"
	"io"
	"strings"

	"pagetint/internal/tab"
)

func report(w io.Writer, tb *tab.Tab, all bool, queries []string) {
	e := tb.Engine
	if q, ok := e.SelectorsQuality(); ok {
		fmt.Fprintf(w, "quality:   %d\n", q)
	} else {
		fmt.Fprintln(w, "quality:   undefined")
	}
	fmt.Fprintf(w, "selectors: %d\n", e.SelectorsCount())
	fmt.Fprintf(w, "storage:   %t\n", e.StorageAvailable())

	fmt.Fprintln(w, "style refs:")
	for _, ref := range e.StyleRefs() {
		fmt.Fprintf(w, "  %s\n", ref)
	}
	fmt.Fprintln(w, "external:")
	for _, p := range e.CSSPromises() {
		line := fmt.Sprintf("  %-8s %s", p.State(), p.URL())
		if err := p.Err(); err != nil {
			line += " (" + err.Error() + ")"
		}
		fmt.Fprintln(w, line)
	}
	if all {
		fmt.Fprintln(w, "indexed:")
		for _, s := range e.Selectors() {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}

	for _, q := range queries {
		els, err := tb.Doc.Select(q)
		if err != nil {
			fmt.Fprintf(w, "match %q: %v\n", q, err)
			continue
		}
		fmt.Fprintf(w, "match %q: %d element(s)\n", q, len(els))
		for _, el := range els {
			matched := e.ElementMatchedSelectors(el)
			fmt.Fprintf(w, "  <%s> %d prefiltered, matched: %s\n",
				strings.ToLower(el.TagName()), len(e.PreFilteredSelectors(el)), strings.Join(matched, " | "))
		}
	}
}
