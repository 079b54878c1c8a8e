// Package engine indexes the stylesheets of a document by the elements their
// selectors can apply to.
//
// A Scan walks the document's stylesheets, keeps the rules that declare color
// bearing properties, bounds their number by dropping low priority properties
// and records which sheets contributed. Elements then ask for the selectors
// that can structurally apply to them; answers are memoized per element
// signature and periodically persisted so the next page load of the same
// context starts warm. Cross-origin stylesheets are fetched directly or, when
// that fails, through a privileged peer on the message bus.
package engine

import (
	"context"
	"sort"
	"sync"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pagetint/internal/cssom"
	"pagetint/internal/messaging"
	"pagetint/internal/store"
)

// StyleRefs identifies the stylesheets a selector set was built from: URLs,
// external markers and content hashes of unnamed sheets.
type StyleRefs map[string]struct{}

// Superset reports whether refs contains every member of other.
func (refs StyleRefs) Superset(other StyleRefs) bool {
	for k := range other {
		if _, ok := refs[k]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order.
func (refs StyleRefs) Sorted() []string {
	out := make([]string, 0, len(refs))
	for k := range refs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Deps are the collaborators of an Engine. All are optional: without a Store
// the cache lives in memory, without a Fetcher external sheets go straight to
// the Bus, without a Bus failed fetches are rejected.
type Deps struct {
	Store   store.Store
	Bus     messaging.Bus
	Fetcher Fetcher
	Logger  *zap.Logger
}

// UserActionListener receives the elements that may change appearance under
// an interaction state.
type UserActionListener func(pc PseudoClass, elements []cssom.Element)

type userActionEvent struct {
	pc       PseudoClass
	elements []cssom.Element
}

// Engine is the selector index of one browsing context. It is safe for
// concurrent use.
type Engine struct {
	opts      Options
	store     store.Store
	bus       messaging.Bus
	fetcher   Fetcher
	log       *zap.Logger
	forbidden map[string]struct{}
	pseudo    map[PseudoClass]*regexp2.Regexp
	trimmer   *regexp2.Regexp

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	unsub  func()

	mu               sync.Mutex
	storageAvailable bool
	lastPersist      struct{ selectors, styles int }
	selectors        []string
	quality          int
	scanned          bool

	prefiltered       map[string][]string
	cachedPrefiltered map[string][]string
	styleRefs         StyleRefs
	cachedStyleRefs   StyleRefs

	passedTransition map[string]struct{}
	passedPseudo     map[string][]cssom.Element
	reportedPseudo   map[string]struct{}
	mediaQueries     map[string]bool

	pending   map[string]*Pending
	order     []*Pending
	delegated map[string]chan delegatedReply

	listeners  map[int]UserActionListener
	listenerID int
}

// New builds an engine and loads the snapshot persisted by a previous one.
func New(opts Options, deps Deps) *Engine {
	opts = opts.withDefaults()
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("engine")
	if !opts.Debug {
		log = log.WithOptions(zap.IncreaseLevel(zapcore.InfoLevel))
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		opts:              opts,
		store:             deps.Store,
		bus:               deps.Bus,
		fetcher:           deps.Fetcher,
		log:               log,
		forbidden:         make(map[string]struct{}, len(opts.TransitionForbidden)),
		pseudo:            compilePseudoPatterns(),
		trimmer:           trimmerTemplate.MustBind(nil),
		ctx:               ctx,
		cancel:            cancel,
		storageAvailable:  deps.Store != nil,
		prefiltered:       make(map[string][]string),
		cachedPrefiltered: make(map[string][]string),
		styleRefs:         make(StyleRefs),
		cachedStyleRefs:   make(StyleRefs),
		passedTransition:  make(map[string]struct{}),
		passedPseudo:      make(map[string][]cssom.Element),
		reportedPseudo:    make(map[string]struct{}),
		mediaQueries:      make(map[string]bool),
		pending:           make(map[string]*Pending),
		delegated:         make(map[string]chan delegatedReply),
		listeners:         make(map[int]UserActionListener),
	}
	for _, p := range opts.TransitionForbidden {
		e.forbidden[p] = struct{}{}
	}
	if e.bus != nil {
		e.unsub = e.bus.Subscribe(e.onMessage)
	}
	e.loadSnapshot()
	return e
}

// Scan processes the stylesheets of doc: it rebuilds the selector set, marks
// transition-bearing elements, reports elements to observe for interaction
// states and starts fetches for unreadable external sheets.
func (e *Engine) Scan(doc cssom.Document) {
	e.mu.Lock()
	res := e.scanLocked(doc)
	if len(res.transition) > 0 {
		e.findElementsWithTransitionLocked(doc, res.transition)
	}
	events := e.findElementsForUserActionObservationLocked(doc, res.rules)

	set := e.filterRules(res.rules)
	e.quality = set.Quality
	e.selectors = set.Selectors
	e.scanned = true
	if e.cachedStyleRefs.Superset(res.refs) {
		e.styleRefs = e.cachedStyleRefs
		e.prefiltered = e.cachedPrefiltered
	} else {
		e.styleRefs = res.refs
		clear(e.prefiltered)
	}
	listeners := e.listenersLocked()
	e.mu.Unlock()

	// observer results are broadcast once the new selector set is in place

	for _, ev := range events {
		for _, fn := range listeners {
			fn(ev.pc, ev.elements)
		}
	}
}

// SelectorsCount returns the size of the current selector set.
func (e *Engine) SelectorsCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.selectors)
}

// SelectorsQuality returns the quality of the current selector set; ok is
// false before the first scan.
func (e *Engine) SelectorsQuality() (quality int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quality, e.scanned
}

// Selectors returns a copy of the current selector set.
func (e *Engine) Selectors() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.selectors...)
}

// StyleRefs returns the style refs the live cache is keyed on, sorted.
func (e *Engine) StyleRefs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.styleRefs.Sorted()
}

// OnElementsForUserActionObservationFound registers fn and returns a function
// removing it. Listeners run synchronously at the end of Scan.
func (e *Engine) OnElementsForUserActionObservationFound(fn UserActionListener) (remove func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.listenerID
	e.listenerID++
	e.listeners[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Engine) listenersLocked() []UserActionListener {
	ids := make([]int, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]UserActionListener, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.listeners[id])
	}
	return out
}

// SettingsChanged forgets which interaction state queries already ran so the
// next scan reports their elements again.
func (e *Engine) SettingsChanged() {
	e.mu.Lock()
	clear(e.passedPseudo)
	clear(e.reportedPseudo)
	e.mu.Unlock()
}

// Close stops fetch pipelines and detaches from the bus.
func (e *Engine) Close() error {
	e.cancel()
	if e.unsub != nil {
		e.unsub()
	}
	e.wg.Wait()
	return nil
}
