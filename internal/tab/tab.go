// Package tab wires everything one page needs: its document, the selector
// engine, the session store and the channel to the background service.
package tab

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pagetint/internal/background"
	"pagetint/internal/config"
	"pagetint/internal/cssom/htmldom"
	"pagetint/internal/engine"
	"pagetint/internal/fetch"
	"pagetint/internal/messaging"
	"pagetint/internal/store"
)

// OpenStore builds the session store configured in cfg.
func OpenStore(cfg config.StoreConfig, log *zap.Logger) (store.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Kind {
	case "", "memory":
		m := store.NewMemory()
		m.Quota = cfg.Quota
		return m, noop, nil
	case "none":
		return store.Disabled{}, noop, nil
	case "sqlite":
		s, err := store.OpenSQLite(cfg.Path, cfg.Session, log)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
}

func header(userAgent string) http.Header {
	h := http.Header{}
	if userAgent != "" {
		h.Set("User-Agent", userAgent)
	}
	return h
}

// NewService builds the background service, with a browser fallback when
// enabled.
func NewService(cfg config.BackgroundConfig, log *zap.Logger) *background.Service {
	client := fetch.NewClient("")
	client.Header = header(cfg.UserAgent)
	sc := background.Config{
		Fetcher:  client,
		Timeout:  cfg.Timeout,
		CacheTTL: cfg.CacheTTL,
		Logger:   log,
	}
	if cfg.Browser {
		sc.Fallback = background.NewBrowser(cfg.ChromePath, client.Header, cfg.Timeout, log)
	}
	return background.NewService(sc)
}

// LoadPage downloads and parses the page at pageURL.
func LoadPage(ctx context.Context, pageURL string, cfg *config.Config, log *zap.Logger) (*htmldom.Document, error) {
	client := fetch.NewClient("")
	client.Header = header(cfg.Background.UserAgent)
	client.Accept = "text/html,application/xhtml+xml"
	text, err := client.Text(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return htmldom.Parse(strings.NewReader(text), htmldom.Options{
		BaseURL:  pageURL,
		Viewport: cfg.Viewport,
		Logger:   log,
	})
}

// Tab is one page with its engine.
type Tab struct {
	Doc    *htmldom.Document
	Engine *engine.Engine
	Store  store.Store

	log     *zap.Logger
	closers []func() error
	stop    context.CancelFunc
	done    chan struct{}
}

// Open builds a tab over doc. Without a background URL the background service
// runs in process and is reached through a pipe.
func Open(cfg *config.Config, doc *htmldom.Document, log *zap.Logger) (*Tab, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tab{Doc: doc, log: log.Named("tab")}

	st, closeStore, err := OpenStore(cfg.Store, log)
	if err != nil {
		return nil, err
	}
	t.Store = st
	t.closers = append(t.closers, closeStore)

	var bus messaging.Bus
	if cfg.Background.URL != "" {
		c := messaging.NewHTTPClient(cfg.Background.URL, cfg.Background.Timeout, log)
		t.closers = append(t.closers, c.Close)
		bus = c
	} else {
		content, bg := messaging.NewPipe(16)
		svc := NewService(cfg.Background, log)
		svc.Attach(bg)
		t.closers = append(t.closers, svc.Close, content.Close)
		bus = content
	}

	fetcher := fetch.NewClient(fetch.OriginOf(doc.BaseURL()))
	fetcher.Header = header(cfg.Background.UserAgent)
	t.Engine = engine.New(cfg.EngineOptions(), engine.Deps{
		Store:   st,
		Bus:     bus,
		Fetcher: fetcher,
		Logger:  log,
	})

	ctx, stop := context.WithCancel(context.Background())
	t.stop, t.done = stop, make(chan struct{})
	go func() {
		defer close(t.done)
		_ = t.Engine.Run(ctx)
	}()
	return t, nil
}

const settleRounds = 3

// Settle scans the page, waits for the external stylesheets the scan asked
// for and scans again so their rules are indexed. Fetched sheets may import
// further sheets, so this repeats a few rounds. Failed fetches are logged,
// not returned.
func (t *Tab) Settle(ctx context.Context, timeout time.Duration) {
	t.Engine.Scan(t.Doc)
	seen := 0
	for round := 0; round < settleRounds; round++ {
		n := len(t.Engine.CSSPromises())
		if n == seen {
			return
		}
		seen = n
		wctx, cancel := context.WithTimeout(ctx, timeout)
		err := t.Engine.WaitExternal(wctx)
		cancel()
		if err != nil {
			t.log.Info("Some external stylesheets were not loaded", zap.Error(err))
		}
		t.Engine.Scan(t.Doc)
	}
}

// Close stops periodic persistence, persists the engine state one last time
// and releases everything in reverse order.
func (t *Tab) Close() error {
	t.stop()
	<-t.done
	err := t.Engine.Persist()
	err = multierr.Append(err, t.Engine.Close())
	for i := len(t.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, t.closers[i]())
	}
	return err
}
