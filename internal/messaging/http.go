package messaging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MessagesPath is the endpoint the background server accepts messages on.
const MessagesPath = "/v1/messages"

// HTTPClient is a Bus whose peer is a background server reached over HTTP. Each
// posted message is sent as a request; a reply carried in the response body is
// delivered to subscribers.
type HTTPClient struct {
	listeners
	base   string
	client *http.Client
	log    *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var _ Bus = (*HTTPClient)(nil)

// NewHTTPClient returns a bus talking to the server at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration, log *zap.Logger) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		log:    log.Named("bus"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Post sends msg asynchronously.
func (c *HTTPClient) Post(msg Message) error {
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	body, err := Encode(msg)
	if err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		reply, err := c.roundTrip(body)
		if err != nil {
			c.log.Debug("Message round trip failed", zap.String("type", string(msg.Type())), zap.Error(err))
			reply = ErrorMessage{Text: err.Error()}
			if req, ok := msg.(FetchExternalCSS); ok {
				reply = ExternalCSSFetchFailed{URL: req.URL, Error: err.Error()}
			}
		}
		if reply != nil {
			c.dispatch(reply)
		}
	}()
	return nil
}

func (c *HTTPClient) roundTrip(body []byte) (Message, error) {
	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.base+MessagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("messaging: background replied %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return Decode(data)
}

// Subscribe registers fn for replies.
func (c *HTTPClient) Subscribe(fn func(Message)) func() {
	return c.add(fn)
}

// Close cancels in-flight requests and waits for their goroutines.
func (c *HTTPClient) Close() error {
	c.cancel()
	c.wg.Wait()
	return nil
}
