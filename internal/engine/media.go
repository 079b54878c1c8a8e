package engine

import "pagetint/internal/cssom"

// validateMediaQueryLocked evaluates a media group condition once per engine.
// Results are never invalidated, so a later viewport change is not seen.
func (e *Engine) validateMediaQueryLocked(doc cssom.Document, query string) bool {
	if ok, cached := e.mediaQueries[query]; cached {
		return ok
	}
	ok := doc.MatchMedia(query)
	e.mediaQueries[query] = ok
	return ok
}
