// Package media evaluates CSS media query lists against a fixed viewport.
package media

import (
	"strconv"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
)

const (
	defaultWidth  = 1280
	defaultHeight = 800
	baseFontPx    = 16.0
)

// Viewport describes the environment queries are evaluated against.
type Viewport struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	ColorScheme string `yaml:"color_scheme"` // "light" or "dark"
	Print       bool   `yaml:"print"`
}

func (v Viewport) normalized() Viewport {
	if v.Width <= 0 {
		v.Width = defaultWidth
	}
	if v.Height <= 0 {
		v.Height = defaultHeight
	}
	v.ColorScheme = strings.ToLower(strings.TrimSpace(v.ColorScheme))
	if v.ColorScheme == "" {
		v.ColorScheme = "light"
	}
	return v
}

type tok struct {
	tt   css.TokenType
	text string
}

func tokenize(query string) []tok {
	l := css.NewLexer(parse.NewInputString(query))
	var out []tok
	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			return out
		}
		if tt == css.WhitespaceToken || tt == css.CommentToken {
			continue
		}
		out = append(out, tok{tt: tt, text: strings.ToLower(string(data))})
	}
}

// splitList splits a token stream on top-level commas.
func splitList(toks []tok) [][]tok {
	var (
		out   [][]tok
		cur   []tok
		depth int
	)
	for _, t := range toks {
		switch t.tt {
		case css.LeftParenthesisToken, css.FunctionToken:
			depth++
		case css.RightParenthesisToken:
			if depth > 0 {
				depth--
			}
		case css.CommaToken:
			if depth == 0 {
				out = append(out, cur)
				cur = nil
				continue
			}
		}
		cur = append(cur, t)
	}
	return append(out, cur)
}

// Matches reports whether any query of the comma separated list applies to v.
// An empty list matches.
func (v Viewport) Matches(query string) bool {
	if strings.TrimSpace(query) == "" {
		return true
	}
	vp := v.normalized()
	for _, q := range splitList(tokenize(query)) {
		if len(q) == 0 {
			continue
		}
		if vp.matchOne(q) {
			return true
		}
	}
	return false
}

func (v Viewport) matchOne(q []tok) bool {
	negate := false
	i := 0
	if q[i].tt == css.IdentToken && (q[i].text == "not" || q[i].text == "only") {
		negate = q[i].text == "not"
		i++
	}
	result := true
	if i < len(q) && q[i].tt == css.IdentToken {
		result = v.matchType(q[i].text)
		i++
	}
	for i < len(q) {
		t := q[i]
		switch {
		case t.tt == css.IdentToken && (t.text == "and" || t.text == "or"):
			i++
		case t.tt == css.LeftParenthesisToken:
			end := i + 1
			depth := 1
			for end < len(q) && depth > 0 {
				switch q[end].tt {
				case css.LeftParenthesisToken, css.FunctionToken:
					depth++
				case css.RightParenthesisToken:
					depth--
				}
				end++
			}
			inner := q[i+1 : end]
			if len(inner) > 0 && inner[len(inner)-1].tt == css.RightParenthesisToken {
				inner = inner[:len(inner)-1]
			}
			if !v.matchFeature(inner) {
				result = false
			}
			i = end
		default:
			i++
		}
	}
	if negate {
		return !result
	}
	return result
}

func (v Viewport) matchType(mediaType string) bool {
	switch mediaType {
	case "all":
		return true
	case "screen", "handheld", "projection":
		return !v.Print
	case "print":
		return v.Print
	default:
		return false
	}
}

func (v Viewport) matchFeature(expr []tok) bool {
	if len(expr) == 0 || expr[0].tt != css.IdentToken {
		return true
	}
	feature := expr[0].text
	var value []tok
	if len(expr) > 2 && expr[1].tt == css.ColonToken {
		value = expr[2:]
	}
	switch feature {
	case "orientation":
		orientation := "portrait"
		if v.Width > v.Height {
			orientation = "landscape"
		}
		return len(value) == 0 || value[0].text == orientation
	case "min-width":
		if px, ok := lengthToPx(value, v.Width); ok {
			return v.Width >= px
		}
	case "max-width":
		if px, ok := lengthToPx(value, v.Width); ok {
			return v.Width <= px
		}
	case "min-height":
		if px, ok := lengthToPx(value, v.Height); ok {
			return v.Height >= px
		}
	case "max-height":
		if px, ok := lengthToPx(value, v.Height); ok {
			return v.Height <= px
		}
	case "prefers-color-scheme":
		return len(value) == 0 || value[0].text == v.ColorScheme
	}
	// unsupported features do not exclude a query
	return true
}

func lengthToPx(value []tok, base int) (int, bool) {
	if len(value) == 0 {
		return 0, false
	}
	t := value[0]
	switch t.tt {
	case css.NumberToken:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return 0, false
		}
		return int(f + 0.5), true
	case css.PercentageToken:
		f, err := strconv.ParseFloat(strings.TrimSuffix(t.text, "%"), 64)
		if err != nil {
			return 0, false
		}
		return int(float64(base) * f / 100.0), true
	case css.DimensionToken:
		num, unit := splitDimension(t.text)
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		switch unit {
		case "px":
			return int(f + 0.5), true
		case "em", "rem":
			return int(f*baseFontPx + 0.5), true
		case "vw", "vh":
			return int(float64(base) * f / 100.0), true
		}
	}
	return 0, false
}

func splitDimension(s string) (string, string) {
	i := 0
	for i < len(s) {
		c := s[i]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' {
			i++
			continue
		}
		break
	}
	return s[:i], s[i:]
}
