// Package background answers privileged requests from the page side, chiefly
// fetching stylesheets that a page context may not read.
package background

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pagetint/internal/fetch"
	"pagetint/internal/messaging"
)

const defaultFetchTimeout = 20 * time.Second

// Fetcher returns the text behind an absolute URL.
type Fetcher interface {
	Text(ctx context.Context, url string) (string, error)
}

// Config wires a Service.
type Config struct {
	// Fetcher is the primary transport. Defaults to a fetch.Client without an
	// origin, i.e. not subject to CORS.
	Fetcher Fetcher
	// Fallback is tried when Fetcher fails. Usually a *Browser; may be nil.
	Fallback Fetcher
	Timeout  time.Duration
	// CacheTTL keeps fetched sheets for reuse; zero disables the cache.
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service handles page-side messages.
type Service struct {
	fetcher  Fetcher
	fallback Fetcher
	timeout  time.Duration
	cache    *sheetCache
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	unsubs []func()
}

// NewService returns a ready service.
func NewService(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = fetch.NewClient("")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		fetcher:  cfg.Fetcher,
		fallback: cfg.Fallback,
		timeout:  cfg.Timeout,
		cache:    newSheetCache(cfg.CacheTTL, cfg.Clock),
		log:      cfg.Logger.Named("background"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle processes one message and returns the reply, or nil when the message
// needs none.
func (s *Service) Handle(ctx context.Context, msg messaging.Message) messaging.Message {
	switch m := msg.(type) {
	case messaging.FetchExternalCSS:
		text, err := s.fetchCSS(ctx, m.URL)
		if err != nil {
			s.log.Info("External CSS fetch failed", zap.String("url", m.URL), zap.Error(err))
			return messaging.ExternalCSSFetchFailed{URL: m.URL, Error: err.Error()}
		}
		return messaging.ExternalCSSFetchCompleted{URL: m.URL, CSSText: text}
	case messaging.ErrorMessage:
		s.log.Warn("Page reported an error", zap.String("text", m.Text))
	default:
		s.log.Debug("Ignoring message", zap.String("type", string(msg.Type())))
	}
	return nil
}

func (s *Service) fetchCSS(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("empty url")
	}
	if text, ok := s.cache.Select(url); ok {
		s.log.Debug("Stylesheet served from cache", zap.String("url", url))
		return text, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.fetcher.Text(ctx, url)
	if err != nil && s.fallback != nil {
		s.log.Debug("Retrying through fallback", zap.String("url", url), zap.Error(err))
		var ferr error
		if text, ferr = s.fallback.Text(ctx, url); ferr != nil {
			return "", multierr.Combine(err, fmt.Errorf("fallback: %w", ferr))
		}
		err = nil
	}
	if err != nil {
		return "", err
	}
	s.cache.Store(url, text)
	return text, nil
}

// Attach serves requests arriving on bus and posts replies back on it. Each
// request is handled on its own goroutine so a slow stylesheet does not hold
// up the rest.
func (s *Service) Attach(bus messaging.Bus) {
	unsub := bus.Subscribe(func(msg messaging.Message) {
		if _, ok := msg.(messaging.FetchExternalCSS); !ok {
			s.Handle(s.ctx, msg)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			reply := s.Handle(s.ctx, msg)
			if reply == nil || s.ctx.Err() != nil {
				return
			}
			if err := bus.Post(reply); err != nil {
				s.log.Debug("Reply dropped", zap.String("type", string(reply.Type())), zap.Error(err))
			}
		}()
	})
	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsub)
	s.mu.Unlock()
}

// Close detaches from every bus and waits for in-flight requests.
func (s *Service) Close() error {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	s.cancel()
	s.wg.Wait()
	var err error
	if c, ok := s.fallback.(interface{ Close() error }); ok {
		err = c.Close()
	}
	return err
}
