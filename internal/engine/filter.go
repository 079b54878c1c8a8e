package engine

import (
	"go.uber.org/zap"

	"pagetint/internal/cssom"
)

// SelectorSet is the ordered selector list retained by filtering together with
// the quality tier it was cut at. Quality 0 means the keyword fallback was
// used.
type SelectorSet struct {
	Selectors []string
	Quality   int
}

// filterRules keeps the rules within the limit by dropping priority tiers from
// the lowest, then falling back to interaction keyword trimming. Order is
// preserved.
func (e *Engine) filterRules(rules []cssom.StyleRule) SelectorSet {
	props := e.opts.Priorities
	maxPriority := 1
	for _, p := range props {
		if p.Priority > maxPriority {
			maxPriority = p.Priority
		}
	}
	quality := maxPriority
	filtered := rules
	for maxPriority > 1 && len(filtered) > e.opts.RulesLimit {
		maxPriority--
		quality--
		props = tiersUpTo(props, maxPriority)
		filtered = keepRules(filtered, func(r cssom.StyleRule) bool { return declaresAny(r, props) })
	}

	if len(filtered) > e.opts.RulesLimit {
		quality = 0
		trimmer := func(r cssom.StyleRule) bool { return matches(e.trimmer, r.SelectorText()) }
		trimmed := keepRules(rules, trimmer)
		if len(trimmed) > e.opts.TrimmedRulesLimit {
			filtered = keepRules(filtered, trimmer)
		} else {
			filtered = trimmed
		}
	}

	set := SelectorSet{Quality: quality, Selectors: make([]string, 0, len(filtered))}
	for _, r := range filtered {
		set.Selectors = append(set.Selectors, r.SelectorText())
	}
	e.log.Debug("Selectors filtered",
		zap.Int("relevant", len(rules)),
		zap.Int("kept", len(set.Selectors)),
		zap.Int("quality", quality))
	return set
}

func tiersUpTo(props []PropertyPriority, max int) []PropertyPriority {
	out := make([]PropertyPriority, 0, len(props))
	for _, p := range props {
		if p.Priority <= max {
			out = append(out, p)
		}
	}
	return out
}

func keepRules(rules []cssom.StyleRule, keep func(cssom.StyleRule) bool) []cssom.StyleRule {
	out := make([]cssom.StyleRule, 0, len(rules))
	for _, r := range rules {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
