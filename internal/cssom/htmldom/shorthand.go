package htmldom

import (
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

type declaration struct {
	property string
	value    string
	// implied longhands come from expanding a shorthand and are not part of
	// the rule text
	implied bool
}

var borderSides = map[string]string{
	"border":        "border-color",
	"border-top":    "border-top-color",
	"border-right":  "border-right-color",
	"border-bottom": "border-bottom-color",
	"border-left":   "border-left-color",
}

// expandShorthand returns the declaration followed by the color related
// longhands a browser would derive from it.
func expandShorthand(prop, val string) []declaration {
	out := []declaration{{property: prop, value: val}}
	switch prop {
	case "background":
		parts := components(val)
		if img := firstMatching(parts, isImage); img != "" {
			out = append(out, declaration{property: "background-image", value: img, implied: true})
		}
		if col := firstMatching(parts, isColor); col != "" {
			out = append(out, declaration{property: "background-color", value: col, implied: true})
		}
	case "border", "border-top", "border-right", "border-bottom", "border-left":
		if col := firstMatching(components(val), isColor); col != "" {
			out = append(out, declaration{property: borderSides[prop], value: col, implied: true})
			if prop == "border" {
				for _, side := range []string{"border-top-color", "border-right-color", "border-bottom-color", "border-left-color"} {
					out = append(out, declaration{property: side, value: col, implied: true})
				}
			}
		}
	case "transition":
		var props, durations []string
		for _, item := range splitTopLevel(val, ',') {
			p, d := transitionItem(item)
			props = append(props, p)
			durations = append(durations, d)
		}
		out = append(out,
			declaration{property: "transition-property", value: strings.Join(props, ", "), implied: true},
			declaration{property: "transition-duration", value: strings.Join(durations, ", "), implied: true})
	}
	return out
}

// components splits a value into its top level space separated parts.
func components(val string) []string {
	return splitTopLevel(val, ' ')
}

func splitTopLevel(val string, sep byte) []string {
	l := css.NewLexer(parse.NewInputString(val))
	var (
		out   []string
		cur   strings.Builder
		depth int
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}
		switch tt {
		case css.FunctionToken, css.LeftParenthesisToken:
			depth++
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case css.WhitespaceToken:
			if depth == 0 && sep == ' ' {
				flush()
				continue
			}
		case css.CommaToken:
			if depth == 0 && sep == ',' {
				flush()
				continue
			}
		}
		cur.Write(data)
	}
	flush()
	return out
}

func firstMatching(parts []string, pred func(string) bool) string {
	for _, p := range parts {
		if pred(p) {
			return p
		}
	}
	return ""
}

func isImage(part string) bool {
	p := strings.ToLower(part)
	return strings.HasPrefix(p, "url(") || strings.Contains(p, "gradient(") || strings.HasPrefix(p, "image-set(")
}

var colorFunctions = []string{"rgb(", "rgba(", "hsl(", "hsla(", "hwb(", "lab(", "lch(", "oklab(", "oklch(", "color(", "color-mix(", "var("}

var colorKeywords = map[string]bool{
	"transparent": true, "currentcolor": true,
	"black": true, "white": true, "red": true, "green": true, "blue": true, "yellow": true,
	"orange": true, "purple": true, "gray": true, "grey": true, "silver": true, "maroon": true,
	"navy": true, "teal": true, "olive": true, "lime": true, "aqua": true, "fuchsia": true,
	"pink": true, "brown": true, "gold": true, "indigo": true, "violet": true, "cyan": true,
	"magenta": true, "beige": true, "ivory": true, "khaki": true, "coral": true, "salmon": true,
	"tomato": true, "crimson": true, "orchid": true, "plum": true, "tan": true, "wheat": true,
	"lightgray": true, "lightgrey": true, "darkgray": true, "darkgrey": true, "whitesmoke": true,
	"gainsboro": true, "dimgray": true, "dimgrey": true, "slategray": true, "steelblue": true,
	"skyblue": true, "royalblue": true, "darkblue": true, "darkred": true, "darkgreen": true,
}

func isColor(part string) bool {
	p := strings.ToLower(part)
	if strings.HasPrefix(p, "#") && len(p) > 1 {
		return true
	}
	for _, fn := range colorFunctions {
		if strings.HasPrefix(p, fn) {
			return true
		}
	}
	return colorKeywords[p]
}

// transitionItem picks the property and duration out of one transition list
// item such as "color 0.3s ease-in 1s".
func transitionItem(item string) (prop, duration string) {
	prop, duration = "all", "0s"
	seenTime := false
	for _, part := range components(item) {
		p := strings.ToLower(part)
		switch {
		case isTime(p):
			if !seenTime {
				duration = p
				seenTime = true
			}
		case isTimingFunction(p):
		default:
			prop = p
		}
	}
	return prop, duration
}

func isTime(p string) bool {
	if !strings.HasSuffix(p, "s") || len(p) < 2 {
		return false
	}
	num := strings.TrimSuffix(strings.TrimSuffix(p, "s"), "m")
	if num == "" {
		return false
	}
	for _, r := range num {
		if (r < '0' || r > '9') && r != '.' && r != '-' && r != '+' {
			return false
		}
	}
	return true
}

func isTimingFunction(p string) bool {
	switch p {
	case "ease", "ease-in", "ease-out", "ease-in-out", "linear", "step-start", "step-end":
		return true
	}
	return strings.HasPrefix(p, "cubic-bezier(") || strings.HasPrefix(p, "steps(") || strings.HasPrefix(p, "linear(")
}
