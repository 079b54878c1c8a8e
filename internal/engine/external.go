package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pagetint/internal/cssom"
	"pagetint/internal/messaging"
)

var (
	// ErrFetchFailed is the error a rejected external stylesheet request wraps.
	ErrFetchFailed = errors.New("engine: external stylesheet fetch failed")

	errNoBus     = errors.New("no message bus to delegate to")
	errNoFetcher = errors.New("no fetcher configured")
)

// Fetcher downloads stylesheet text. fetch.Client implements it.
type Fetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// State is the lifecycle of a Pending request.
type State int

const (
	StatePending State = iota
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Pending tracks the fetch of one external stylesheet. It settles exactly
// once.
type Pending struct {
	url  string
	done chan struct{}
	once sync.Once

	mu    sync.Mutex
	state State
	err   error
}

func newPending(url string) *Pending {
	return &Pending{url: url, done: make(chan struct{})}
}

func (p *Pending) URL() string { return p.url }

// Done is closed when the request settles.
func (p *Pending) Done() <-chan struct{} { return p.done }

func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the rejection error of a settled request.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Wait blocks until the request settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) settle(err error) bool {
	settled := false
	p.once.Do(func() {
		p.mu.Lock()
		p.state = StateResolved
		if err != nil {
			p.state, p.err = StateRejected, err
		}
		p.mu.Unlock()
		close(p.done)
		settled = true
	})
	return settled
}

type delegatedReply struct {
	text string
	err  error
}

// CSSPromises returns every external stylesheet request this engine started,
// in start order.
func (e *Engine) CSSPromises() []*Pending {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Pending(nil), e.order...)
}

// WaitExternal waits for all started requests to settle and returns the
// rejections.
func (e *Engine) WaitExternal(ctx context.Context) error {
	var errs []error
	for _, p := range e.CSSPromises() {
		if err := p.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return multierr.Combine(errs...)
}

// fetchExternalLocked starts the pipeline for url unless one exists.
func (e *Engine) fetchExternalLocked(doc cssom.Document, url string) {
	if _, ok := e.pending[url]; ok {
		return
	}
	p := newPending(url)
	e.pending[url] = p
	e.order = append(e.order, p)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runFetch(doc, p)
	}()
}

func (e *Engine) runFetch(doc cssom.Document, p *Pending) {
	var (
		text string
		err  = errNoFetcher
	)
	if e.fetcher != nil {
		text, err = e.fetcher.Text(e.ctx, p.url)
	}
	if err != nil {
		e.log.Debug("Error during css file download", zap.String("url", p.url), zap.Error(err))
		text, err = e.delegate(p.url)
	}
	if err != nil {
		p.settle(fmt.Errorf("%w: %s: %v", ErrFetchFailed, p.url, err))
		return
	}
	doc.InsertExternalCSS(p.url, text)
	p.settle(nil)
}

// delegate asks the privileged peer for url and waits for its reply.
func (e *Engine) delegate(url string) (string, error) {
	if e.bus == nil {
		return "", errNoBus
	}
	ch := make(chan delegatedReply, 1)
	e.mu.Lock()
	e.delegated[url] = ch
	e.mu.Unlock()

	if err := e.bus.Post(messaging.FetchExternalCSS{URL: url}); err != nil {
		e.mu.Lock()
		delete(e.delegated, url)
		e.mu.Unlock()
		return "", err
	}
	select {
	case r := <-ch:
		return r.text, r.err
	case <-e.ctx.Done():
		return "", e.ctx.Err()
	}
}

// onMessage handles replies from the privileged peer. A reply for a URL that
// is not awaited, including a second reply for a settled one, is ignored.
func (e *Engine) onMessage(msg messaging.Message) {
	switch m := msg.(type) {
	case messaging.ExternalCSSFetchCompleted:
		e.reply(m.URL, delegatedReply{text: m.CSSText})
	case messaging.ExternalCSSFetchFailed:
		e.reply(m.URL, delegatedReply{err: errors.New(m.Error)})
		e.log.Debug("Background fetch failed", zap.String("url", m.URL), zap.String("error", m.Error))
	case messaging.ErrorMessage:
		e.log.Debug("Background error", zap.String("error", m.Text))
	}
}

func (e *Engine) reply(url string, r delegatedReply) {
	e.mu.Lock()
	ch, ok := e.delegated[url]
	delete(e.delegated, url)
	e.mu.Unlock()
	if ok {
		ch <- r
	}
}
