package engine

import "time"

// PropertyPriority assigns a longhand property to a quality tier. Tier 1 holds
// the properties a recolored page cannot do without.
type PropertyPriority struct {
	Property string `yaml:"property"`
	Priority int    `yaml:"priority"`
}

// Options tune scanning, filtering and persistence.
type Options struct {
	// RulesLimit bounds the number of selectors kept after filtering.
	RulesLimit int
	// TrimmedRulesLimit bounds the keyword trimmed fallback set.
	TrimmedRulesLimit int
	Priorities        []PropertyPriority
	// TransitionForbidden lists the transition properties that make an
	// element transition-bearing.
	TransitionForbidden []string
	PersistInterval     time.Duration
	// ChunkSize is the number of selectors joined into one compound query.
	ChunkSize int
	// Debug enables diagnostics for recovered errors.
	Debug bool
}

// DefaultPriorities is the built-in property priority table.
func DefaultPriorities() []PropertyPriority {
	return []PropertyPriority{
		{"background-color", 1},
		{"color", 1},
		{"fill", 2},
		{"border-color", 2},
		{"stroke", 2},
		{"background-image", 3},
		{"background-position", 3},
		{"background-size", 4},
		{"text-shadow", 4},
	}
}

// DefaultTransitionForbidden is the built-in set of color affecting
// transition properties.
func DefaultTransitionForbidden() []string {
	return []string{
		"all",
		"background",
		"background-color",
		"background-image",
		"color",
		"border",
		"border-bottom",
		"border-bottom-color",
		"border-color",
		"border-left",
		"border-left-color",
		"border-right",
		"border-right-color",
		"border-top",
		"border-top-color",
		"text-shadow",
		"filter",
	}
}

// DefaultOptions returns the options the engine runs with unless configured
// otherwise.
func DefaultOptions() Options {
	return Options{
		RulesLimit:          500,
		TrimmedRulesLimit:   500,
		Priorities:          DefaultPriorities(),
		TransitionForbidden: DefaultTransitionForbidden(),
		PersistInterval:     15 * time.Second,
		ChunkSize:           50,
	}
}

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RulesLimit <= 0 {
		o.RulesLimit = def.RulesLimit
	}
	if o.TrimmedRulesLimit <= 0 {
		o.TrimmedRulesLimit = def.TrimmedRulesLimit
	}
	if len(o.Priorities) == 0 {
		o.Priorities = def.Priorities
	}
	if o.TransitionForbidden == nil {
		o.TransitionForbidden = def.TransitionForbidden
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = def.PersistInterval
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}
	return o
}
