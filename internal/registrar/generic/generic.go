// Package generic adapts registrars that expose a plain JSON availability
// endpoint, such as hover and bigrock.
package generic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
)

type Options struct {
	Name string

	// URL may contain {domain}; otherwise the domain is sent as ?domain=.
	URL string

	// Header name and value for an API key, if the registrar needs one.
	AuthHeader string
	APIKey     string

	// AvgPrice is used when an available result carries no price.
	AvgPrice decimal.Decimal

	Timeout   time.Duration
	Transport http.RoundTripper
}

type Client struct {
	opts Options
	http *http.Client
}

func NewClient(opts Options) (*Client, error) {
	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return nil, fmt.Errorf("generic: missing registrar name")
	}
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("%s: missing url", opts.Name)
	}
	if opts.AuthHeader != "" && strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", opts.Name, registrar.ErrMissingCredentials)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = registrar.DefaultTimeout
	}
	return &Client{opts: opts, http: registrar.HTTPClient(opts.Transport, opts.Timeout)}, nil
}

func (c *Client) Name() string { return c.opts.Name }

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return registrar.Offer{}, registrar.ErrEmptyDomain
	}

	headers := map[string]string{"accept": "application/json"}
	if c.opts.AuthHeader != "" {
		headers[c.opts.AuthHeader] = c.opts.APIKey
	}
	b, err := registrar.Do(ctx, c.http, c.Name(), registrar.Request{
		URL:     c.endpoint(domain),
		Headers: headers,
	})
	if err != nil {
		return registrar.Offer{}, err
	}

	var decoded checkResponse
	if err := registrar.DecodeJSON(c.Name(), b, &decoded); err != nil {
		return registrar.Offer{}, err
	}
	if decoded.Available == nil {
		return registrar.Offer{}, fmt.Errorf("%s: missing available field", c.Name())
	}

	offer := registrar.Offer{
		Available: *decoded.Available,
		Premium:   decoded.Premium,
		Currency:  strings.ToUpper(strings.TrimSpace(decoded.Currency)),
	}
	if offer.Currency == "" {
		offer.Currency = "USD"
	}
	if !offer.Available {
		return offer, nil
	}
	price, err := registrar.ParsePrice(rawPrice(decoded.Price), c.opts.AvgPrice)
	if err != nil {
		return registrar.Offer{}, fmt.Errorf("%s: %w", c.Name(), err)
	}
	if !price.IsPositive() {
		return registrar.Offer{}, fmt.Errorf("%s: missing price", c.Name())
	}
	offer.Price = price
	return offer, nil
}

func (c *Client) endpoint(domain string) string {
	if strings.Contains(c.opts.URL, "{domain}") {
		return strings.ReplaceAll(c.opts.URL, "{domain}", url.PathEscape(domain))
	}
	sep := "?"
	if strings.Contains(c.opts.URL, "?") {
		sep = "&"
	}
	return c.opts.URL + sep + "domain=" + url.QueryEscape(domain)
}

// rawPrice accepts prices sent as numbers or strings.
func rawPrice(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}

type checkResponse struct {
	Available *bool           `json:"available"`
	Price     json.RawMessage `json:"price"`
	Currency  string          `json:"currency"`
	Premium   bool            `json:"premium"`
}
