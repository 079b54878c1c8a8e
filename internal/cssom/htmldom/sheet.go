package htmldom

import (
	"net/url"
	"strings"

	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"
	"go.uber.org/zap"

	"pagetint/internal/cssom"
)

// Sheet is a stylesheet owned by a <style> or <link> element, or the target
// of an @import.
type Sheet struct {
	href    string
	marker  string
	ignored bool
	rules   []cssom.Rule
	err     error
	text    string
}

var _ cssom.StyleSheet = (*Sheet)(nil)

func (s *Sheet) Rules() ([]cssom.Rule, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.rules, nil
}

func (s *Sheet) Href() string           { return s.href }
func (s *Sheet) ExternalMarker() string { return s.marker }
func (s *Sheet) Ignored() bool          { return s.ignored }

// unreadableSheet stands for a sheet whose rules live at href and were not
// fetched.
func unreadableSheet(href string) *Sheet {
	return &Sheet{href: href, err: cssom.ErrUnreadable}
}

// parseSheet parses inline CSS text. Text douceur cannot parse yields a readable
// sheet without rules.
func parseSheet(text, base string, log *zap.Logger) *Sheet {
	s := &Sheet{text: text}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return s
	}
	parsed, err := parser.Parse(trimmed)
	if err != nil {
		log.Debug("CSS parse failed", zap.String("base", base), zap.Error(err))
		return s
	}
	s.rules = convertRules(parsed.Rules, base)
	return s
}

func convertRules(list []*cssast.Rule, base string) []cssom.Rule {
	out := make([]cssom.Rule, 0, len(list))
	for _, rule := range list {
		if rule == nil {
			continue
		}
		switch rule.Kind {
		case cssast.QualifiedRule:
			if len(rule.Selectors) == 0 {
				continue
			}
			out = append(out, newStyleRule(rule))
		case cssast.AtRule:
			switch strings.ToLower(strings.TrimSpace(rule.Name)) {
			case "@media":
				out = append(out, &conditionalRule{
					condition: strings.TrimSpace(rule.Prelude),
					rules:     convertRules(rule.Rules, base),
					text:      rule.String(),
				})
			case "@import":
				target, _ := extractImportTarget(rule.Prelude)
				if target == "" {
					continue
				}
				abs := resolveAbsURL(base, target)
				if abs == "" {
					abs = target
				}
				out = append(out, &importRule{sheet: unreadableSheet(abs), text: rule.String()})
			default:
				out = append(out, atRule{text: rule.String()})
			}
		}
	}
	return out
}

type styleRule struct {
	selector string
	decls    []declaration
}

var _ cssom.StyleRule = (*styleRule)(nil)

func newStyleRule(rule *cssast.Rule) *styleRule {
	sels := make([]string, 0, len(rule.Selectors))
	for _, sel := range rule.Selectors {
		if sel = strings.TrimSpace(sel); sel != "" {
			sels = append(sels, sel)
		}
	}
	r := &styleRule{selector: strings.Join(sels, ", ")}
	for _, d := range rule.Declarations {
		if d == nil {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(d.Property))
		val := strings.TrimSpace(d.Value)
		if prop == "" || val == "" {
			continue
		}
		r.decls = append(r.decls, expandShorthand(prop, val)...)
	}
	return r
}

func (r *styleRule) SelectorText() string { return r.selector }

// PropertyValue returns the last declared value of a longhand property.
func (r *styleRule) PropertyValue(name string) string {
	name = strings.ToLower(name)
	for i := len(r.decls) - 1; i >= 0; i-- {
		if r.decls[i].property == name {
			return r.decls[i].value
		}
	}
	return ""
}

func (r *styleRule) CSSText() string {
	var b strings.Builder
	b.WriteString(r.selector)
	b.WriteString(" {")
	for _, d := range r.decls {
		if d.implied {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(d.property)
		b.WriteString(": ")
		b.WriteString(d.value)
		b.WriteByte(';')
	}
	b.WriteString(" }")
	return b.String()
}

type importRule struct {
	sheet *Sheet
	text  string
}

func (r *importRule) CSSText() string              { return r.text }
func (r *importRule) StyleSheet() cssom.StyleSheet { return r.sheet }

type conditionalRule struct {
	condition string
	rules     []cssom.Rule
	text      string
}

func (r *conditionalRule) CSSText() string       { return r.text }
func (r *conditionalRule) ConditionText() string { return r.condition }
func (r *conditionalRule) Rules() []cssom.Rule   { return r.rules }

// atRule is any other at-rule (@font-face, @supports, @keyframes...).
type atRule struct{ text string }

func (r atRule) CSSText() string { return r.text }

func extractImportTarget(prelude string) (target, media string) {
	s := strings.TrimSpace(prelude)
	if s == "" {
		return "", ""
	}
	if strings.HasPrefix(strings.ToLower(s), "url(") {
		end := strings.Index(s, ")")
		if end == -1 {
			return "", ""
		}
		return trimCSSString(s[4:end]), strings.TrimSpace(s[end+1:])
	}
	if (s[0] == '"' || s[0] == '\'') && len(s) > 1 {
		if idx := strings.IndexByte(s[1:], s[0]); idx != -1 {
			return s[1 : idx+1], strings.TrimSpace(s[idx+2:])
		}
	}
	fields := strings.Fields(s)
	return trimCSSString(fields[0]), strings.TrimSpace(strings.TrimPrefix(s, fields[0]))
}

func trimCSSString(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

func resolveAbsURL(base, href string) string {
	hu, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == "" {
		if hu.IsAbs() {
			return hu.String()
		}
		return ""
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return bu.ResolveReference(hu).String()
}
