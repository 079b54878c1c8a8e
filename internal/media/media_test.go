package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewportMatches(t *testing.T) {
	t.Parallel()
	desktop := Viewport{Width: 1280, Height: 800}
	phone := Viewport{Width: 360, Height: 640, ColorScheme: "dark"}
	cases := []struct {
		name  string
		vp    Viewport
		query string
		want  bool
	}{
		{"empty", desktop, "", true},
		{"all", desktop, "all", true},
		{"screen", desktop, "screen", true},
		{"print", desktop, "print", false},
		{"print viewport", Viewport{Print: true}, "print", true},
		{"min-width ok", desktop, "(min-width: 1024px)", true},
		{"min-width fail", phone, "(min-width: 1024px)", false},
		{"max-width em", phone, "screen and (max-width: 40em)", true},
		{"list any", phone, "print, (max-width: 400px)", true},
		{"not", desktop, "not print", true},
		{"not screen", desktop, "not screen", false},
		{"only", desktop, "only screen and (min-height: 600px)", true},
		{"orientation", phone, "(orientation: portrait)", true},
		{"orientation landscape", phone, "(orientation: landscape)", false},
		{"dark", phone, "(prefers-color-scheme: dark)", true},
		{"light default", desktop, "(prefers-color-scheme: dark)", false},
		{"unknown feature", desktop, "(hover: hover)", true},
		{"unknown type", desktop, "tv", false},
		{"zero viewport uses defaults", Viewport{}, "(min-width: 1000px)", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.vp.Matches(tc.query), "Matches(%q)", tc.query)
		})
	}
}
