package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultMaxConnsPerHost caps concurrent connections to a single registrar
// host. It is the only backpressure applied to bulk lookups.
const DefaultMaxConnsPerHost = 10

// NewTransport returns the pooled transport shared by all adapters.
func NewTransport(maxConnsPerHost int) *http.Transport {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = DefaultMaxConnsPerHost
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   maxConnsPerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// HTTPClient builds an http.Client for an adapter. rt may be nil.
func HTTPClient(rt http.RoundTripper, timeout time.Duration) *http.Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Transport: rt, Timeout: timeout}
}

// Request describes one adapter call.
type Request struct {
	Method  string
	URL     string
	Body    any // JSON-encoded when non-nil
	Headers map[string]string
}

// Do performs req and returns the body of a 200 response. Any other status
// is an error that carries a trimmed copy of the body.
func Do(ctx context.Context, c *http.Client, name string, req Request) ([]byte, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	hreq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, err
	}
	if req.Body != nil {
		hreq.Header.Set("content-type", "application/json")
	}
	hreq.Header.Set("user-agent", "dotpricecli/registrar-"+name)
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := c.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := strings.TrimSpace(string(b))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, fmt.Errorf("%s: http %d: %s", name, resp.StatusCode, snippet)
	}
	return b, nil
}

// DecodeJSON decodes b into v, prefixing errors with the registrar name.
func DecodeJSON(name string, b []byte, v any) error {
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: decode error: %w", name, err)
	}
	return nil
}
