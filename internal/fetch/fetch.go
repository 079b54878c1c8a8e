// Package fetch downloads stylesheet text over HTTP.
package fetch

import (
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 8 * time.Second

var (
	// ErrCORS is returned when a cross-origin response does not allow the
	// requesting origin to read it.
	ErrCORS = errors.New("fetch: blocked by CORS policy")
	// ErrStatus is returned for non 2xx responses.
	ErrStatus = errors.New("fetch: unexpected status")
)

// Client fetches text resources. With Origin set it behaves like a page context:
// cross-origin responses are only readable when Access-Control-Allow-Origin
// permits the origin. With Origin empty it behaves like a privileged context.
type Client struct {
	HTTP   *http.Client
	Origin string
	Header http.Header
	// Accept overrides the default stylesheet Accept header.
	Accept string
}

// NewClient returns a client with the default timeout.
func NewClient(origin string) *Client {
	return &Client{
		HTTP:   &http.Client{Timeout: defaultTimeout},
		Origin: origin,
	}
}

// OriginOf returns scheme://host of a page URL.
func OriginOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Text fetches absURL and returns the decoded body.
func (c *Client) Text(ctx context.Context, absURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, absURL, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", absURL, err)
	}
	accept := c.Accept
	if accept == "" {
		accept = "text/css,*/*;q=0.1"
	}
	req.Header.Set("Accept", accept)
	for k, vals := range c.Header {
		if strings.EqualFold(k, "accept") {
			continue
		}
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	crossOrigin := c.Origin != "" && OriginOf(absURL) != c.Origin
	if crossOrigin {
		req.Header.Set("Origin", c.Origin)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", absURL, err)
	}
	defer resp.Body.Close()

	if crossOrigin {
		allow := strings.TrimSpace(resp.Header.Get("Access-Control-Allow-Origin"))
		if allow != "*" && allow != c.Origin {
			return "", fmt.Errorf("fetch %s: %w", absURL, ErrCORS)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: %w: %d", absURL, ErrStatus, resp.StatusCode)
	}

	rc := io.ReadCloser(resp.Body)
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		if gr, err := gzip.NewReader(resp.Body); err == nil {
			rc = gr
			defer gr.Close()
		}
	case "deflate":
		if zr, err := zlib.NewReader(resp.Body); err == nil {
			rc = zr
			defer zr.Close()
		} else if fr := flate.NewReader(resp.Body); fr != nil {
			rc = io.NopCloser(fr)
			defer fr.Close()
		}
	}
	body, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("fetch %s: read body: %w", absURL, err)
	}
	return string(body), nil
}
