package engine

import (
	"hash/fnv"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"pagetint/internal/cssom"
)

// scanResult is what one pass over a document's stylesheets produced.
type scanResult struct {
	rules      []cssom.StyleRule
	transition []string
	refs       StyleRefs
}

// scanItem is a sheet or a media group waiting in the scan queue.
type scanItem struct {
	sheet cssom.StyleSheet
	group cssom.ConditionalRule
}

func (it scanItem) rules() ([]cssom.Rule, error) {
	if it.group != nil {
		return it.group.Rules(), nil
	}
	return it.sheet.Rules()
}

// valuable reports whether a declared value does anything.
func valuable(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "initial", "inherit", "inherited", "unset":
		return false
	}
	return true
}

func declaresAny(r cssom.StyleRule, props []PropertyPriority) bool {
	for _, p := range props {
		if valuable(r.PropertyValue(p.Property)) {
			return true
		}
	}
	return false
}

// scanLocked walks the stylesheets breadth first. Unreadable external sheets
// are handed to the fetch coordinator.
func (e *Engine) scanLocked(doc cssom.Document) scanResult {
	res := scanResult{refs: make(StyleRefs)}
	seenTransition := make(map[string]struct{})

	var queue []scanItem
	for _, s := range doc.StyleSheets() {
		if s != nil {
			queue = append(queue, scanItem{sheet: s})
		}
	}
	for i := 0; i < len(queue); i++ {
		item := queue[i]
		rules, err := item.rules()
		if err != nil {
			if item.sheet != nil && !item.sheet.Ignored() {
				if href := item.sheet.Href(); href != "" && !strings.Contains(href, "font") {
					e.fetchExternalLocked(doc, href)
				}
			}
			continue
		}
		if len(rules) == 0 || (item.group == nil && item.sheet.Ignored()) {
			continue
		}

		named := false
		if item.sheet != nil {
			ref := item.sheet.Href()
			if ref == "" {
				ref = item.sheet.ExternalMarker()
			}
			if ref != "" {
				res.refs[ref] = struct{}{}
				named = true
			}
		}

		var text strings.Builder
		for _, rule := range rules {
			switch r := rule.(type) {
			case cssom.StyleRule:
				if declaresAny(r, e.opts.Priorities) {
					res.rules = append(res.rules, r)
					if !named {
						text.WriteString(r.CSSText())
					}
				}
				if e.hasForbiddenTransition(r) {
					sel := r.SelectorText()
					if _, dup := seenTransition[sel]; !dup {
						seenTransition[sel] = struct{}{}
						res.transition = append(res.transition, sel)
					}
				}
			case cssom.ImportRule:
				if s := r.StyleSheet(); s != nil {
					queue = append(queue, scanItem{sheet: s})
				}
			case cssom.ConditionalRule:
				if e.validateMediaQueryLocked(doc, r.ConditionText()) {
					queue = append(queue, scanItem{group: r})
				}
			}
		}
		if text.Len() > 0 {
			res.refs[contentHash(text.String())] = struct{}{}
		}
	}
	e.log.Debug("Stylesheets scanned",
		zap.Int("sheets", len(queue)),
		zap.Int("relevant", len(res.rules)),
		zap.Int("transition", len(res.transition)),
		zap.Int("refs", len(res.refs)))
	return res
}

func (e *Engine) hasForbiddenTransition(r cssom.StyleRule) bool {
	if zeroDuration(r.PropertyValue("transition-duration")) {
		return false
	}
	for _, p := range strings.Split(r.PropertyValue("transition-property"), ",") {
		if _, ok := e.forbidden[strings.ToLower(strings.TrimSpace(p))]; ok {
			return true
		}
	}
	return false
}

// zeroDuration reports whether every duration of a transition list is zero.
func zeroDuration(v string) bool {
	for _, d := range strings.Split(v, ",") {
		switch strings.TrimSpace(d) {
		case "", "0", "0s", "0ms":
		default:
			return false
		}
	}
	return true
}

func contentHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return strconv.FormatUint(uint64(h.Sum32()), 10)
}
