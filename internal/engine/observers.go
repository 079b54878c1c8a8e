package engine

import (
	"strings"

	"go.uber.org/zap"

	"pagetint/internal/cssom"
)

// chunks joins selectors into compound queries of at most size selectors.
func chunks(selectors []string, size int) []string {
	var out []string
	for start := 0; start < len(selectors); start += size {
		end := start + size
		if end > len(selectors) {
			end = len(selectors)
		}
		out = append(out, strings.Join(selectors[start:end], ","))
	}
	return out
}

// findElementsWithTransitionLocked marks the elements matched by transition
// selectors. Each compound query runs once per engine.
func (e *Engine) findElementsWithTransitionLocked(doc cssom.Document, selectors []string) {
	for _, query := range chunks(selectors, e.opts.ChunkSize) {
		if query == "" {
			continue
		}
		if _, done := e.passedTransition[query]; done {
			continue
		}
		e.passedTransition[query] = struct{}{}
		els, err := doc.QueryAll(query)
		if err != nil {
			e.log.Debug("Transition query failed", zap.String("query", query), zap.Error(err))
			continue
		}
		for _, el := range els {
			el.MarkTransition()
		}
	}
}

// findElementsForUserActionObservationLocked queries the elements that rules
// with an interaction state pseudo class can apply to, the pseudo class
// stripped. Each compound query runs once until SettingsChanged; pseudo
// classes stripping to the same query share its result.
func (e *Engine) findElementsForUserActionObservationLocked(doc cssom.Document, rules []cssom.StyleRule) []userActionEvent {
	var events []userActionEvent
	for _, pc := range PseudoClasses {
		re := e.pseudo[pc]
		seen := make(map[string]struct{})
		var selectors []string
		for _, r := range rules {
			stripped, found := stripPseudo(re, r.SelectorText())
			if !found {
				continue
			}
			if _, dup := seen[stripped]; dup {
				continue
			}
			seen[stripped] = struct{}{}
			selectors = append(selectors, stripped)
		}
		for _, query := range chunks(selectors, e.opts.ChunkSize) {
			if query == "" {
				continue
			}
			key := string(pc) + "|" + query
			if _, done := e.reportedPseudo[key]; done {
				continue
			}
			e.reportedPseudo[key] = struct{}{}
			els, ran := e.passedPseudo[query]
			if !ran {
				var err error
				els, err = doc.QueryAll(query)
				if err != nil {
					e.log.Debug("Pseudo class query failed", zap.String("pseudo", string(pc)), zap.String("query", query), zap.Error(err))
					els = nil
				}
				e.passedPseudo[query] = els
			}
			if len(els) > 0 {
				events = append(events, userActionEvent{pc: pc, elements: els})
			}
		}
	}
	return events
}
