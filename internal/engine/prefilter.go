package engine

import (
	"strings"

	"go.uber.org/zap"

	"pagetint/internal/cssom"
)

// Signature keys the prefilter cache: TAG#id.class list.
func Signature(el cssom.Element) string {
	return el.TagName() + "#" + el.ID() + "." + strings.Join(el.Classes(), " ")
}

// PreFilteredSelectors returns the selectors of the current set whose last
// compound can refer to el. Results are memoized per signature.
func (e *Engine) PreFilteredSelectors(el cssom.Element) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.prefilterLocked(el)...)
}

func (e *Engine) prefilterLocked(el cssom.Element) []string {
	key := Signature(el)
	if cached, ok := e.prefiltered[key]; ok {
		return cached
	}
	re, err := includeTemplate.Bind(includeVars(el.TagName(), el.ID(), el.Classes()))
	if err != nil {
		e.log.Debug("Include pattern failed", zap.String("signature", key), zap.Error(err))
		return nil
	}
	out := make([]string, 0)
	for _, sel := range e.selectors {
		if matches(re, sel) {
			out = append(out, sel)
		}
	}
	e.prefiltered[key] = out
	return out
}

// ElementMatchedSelectors returns the prefiltered selectors el currently
// matches. A selector the element cannot be matched against is dropped from
// the signature's cache entry for good. Pseudo elements answer with their own
// selectors.
func (e *Engine) ElementMatchedSelectors(el cssom.Element) []string {
	if pe, ok := el.(cssom.PseudoElement); ok {
		return pe.MatchedSelectors()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	candidates := e.prefilterLocked(el)
	var (
		result []string
		wrong  map[string]struct{}
	)
	for _, sel := range candidates {
		ok, err := el.Matches(sel)
		if err != nil {
			if wrong == nil {
				wrong = make(map[string]struct{})
			}
			wrong[sel] = struct{}{}
			e.log.Debug("Selector cannot be matched", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if ok {
			result = append(result, sel)
		}
	}
	if len(wrong) > 0 {
		kept := make([]string, 0, len(candidates)-len(wrong))
		for _, sel := range candidates {
			if _, bad := wrong[sel]; !bad {
				kept = append(kept, sel)
			}
		}
		e.prefiltered[Signature(el)] = kept
	}
	return result
}

// CanHavePseudoClass reports whether one of candidates, with pc stripped,
// matches el; that is, whether el may be restyled while in state pc.
func (e *Engine) CanHavePseudoClass(el cssom.Element, candidates []string, pc PseudoClass) bool {
	re, ok := e.pseudo[pc]
	if !ok {
		return false
	}
	for _, sel := range candidates {
		stripped, found := stripPseudo(re, sel)
		if !found {
			continue
		}
		matched, err := el.Matches(stripped)
		if err != nil {
			e.log.Debug("Selector cannot be matched", zap.String("selector", stripped), zap.Error(err))
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
