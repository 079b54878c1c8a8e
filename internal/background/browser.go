package background

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const defaultBrowserTimeout = 25 * time.Second

// Browser fetches resources through a headless Chrome instance. It is the last
// resort for stylesheets that plain HTTP cannot read, e.g. hosts that only
// answer real browsers.
type Browser struct {
	allocator context.Context
	cancel    context.CancelFunc
	header    http.Header
	timeout   time.Duration
	log       *zap.Logger
}

// NewBrowser prepares an allocator; Chrome itself starts on the first fetch.
// execPath may be empty to let chromedp locate the binary.
func NewBrowser(execPath string, header http.Header, timeout time.Duration, log *zap.Logger) *Browser {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultBrowserTimeout
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-extensions", true),
	)
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Browser{
		allocator: allocCtx,
		cancel:    cancel,
		header:    header,
		timeout:   timeout,
		log:       log.Named("browser"),
	}
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	if b.cancel != nil {
		b.cancel()
	}
	return nil
}

// Text navigates to target and returns the raw body of the main response.
func (b *Browser) Text(ctx context.Context, target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", fmt.Errorf("browser fetch: empty target url")
	}
	taskCtx, cancelBrowser := chromedp.NewContext(b.allocator)
	defer cancelBrowser()

	taskCtx, cancel := context.WithTimeout(taskCtx, b.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		mu     sync.Mutex
		mainID network.RequestID
		status int64
	)
	chromedp.ListenTarget(taskCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			mu.Lock()
			if mainID == "" && e.Type == network.ResourceTypeDocument {
				mainID = e.RequestID
			}
			mu.Unlock()
		case *network.EventResponseReceived:
			mu.Lock()
			if e.RequestID == mainID && e.Response != nil {
				status = e.Response.Status
			}
			mu.Unlock()
		}
	})

	actions := []chromedp.Action{network.Enable()}
	if extra := extraHeaders(b.header); len(extra) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(extra))
	}
	actions = append(actions, chromedp.Navigate(target))

	var body string
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		mu.Lock()
		id := mainID
		mu.Unlock()
		if id == "" {
			return fmt.Errorf("browser fetch %s: no document request seen", target)
		}
		data, err := network.GetResponseBody(id).Do(ctx)
		if err != nil {
			return err
		}
		body = string(data)
		return nil
	}))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("browser fetch %s: %w", target, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if status != 0 && (status < 200 || status > 299) {
		return "", fmt.Errorf("browser fetch %s: status %d", target, status)
	}
	b.log.Debug("Fetched through browser", zap.String("url", target), zap.Int("bytes", len(body)))
	return body, nil
}

func extraHeaders(h http.Header) network.Headers {
	extra := network.Headers{}
	for k, vs := range h {
		name := http.CanonicalHeaderKey(k)
		if strings.EqualFold(name, "Content-Length") || len(vs) == 0 {
			continue
		}
		extra[name] = strings.Join(vs, ", ")
	}
	return extra
}
