package dynadot

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.dynadot.com/api3.json"

type Options struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

type Client struct {
	opts Options
	http *http.Client
}

func NewClient(opts Options) (*Client, error) {
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	if opts.APIKey == "" {
		return nil, fmt.Errorf("dynadot: %w (set DYNADOT_API_KEY)", registrar.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts, http: registrar.HTTPClient(opts.Transport, opts.Timeout)}, nil
}

func (c *Client) Name() string { return "dynadot" }

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return registrar.Offer{}, registrar.ErrEmptyDomain
	}

	q := url.Values{}
	q.Set("key", c.opts.APIKey)
	q.Set("command", "search")
	q.Set("domain0", domain)
	q.Set("show_price", "1")
	q.Set("currency", "USD")

	b, err := registrar.Do(ctx, c.http, c.Name(), registrar.Request{
		URL:     c.opts.BaseURL + "?" + q.Encode(),
		Headers: map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return registrar.Offer{}, err
	}

	var decoded searchResponse
	if err := registrar.DecodeJSON(c.Name(), b, &decoded); err != nil {
		return registrar.Offer{}, err
	}
	resp := decoded.SearchResponse
	if strings.TrimSpace(resp.ResponseCode) != "0" {
		msg := strings.TrimSpace(resp.Error)
		if msg == "" {
			msg = "unknown error"
		}
		return registrar.Offer{}, fmt.Errorf("dynadot: %s", msg)
	}

	for _, r := range resp.SearchResults {
		if !strings.EqualFold(r.DomainName, domain) {
			continue
		}
		offer := registrar.Offer{Available: registrar.YesNo(r.Available), Currency: "USD"}
		if !offer.Available {
			return offer, nil
		}
		price, currency, err := parsePrice(r.Price)
		if err != nil {
			return registrar.Offer{}, fmt.Errorf("dynadot: %w", err)
		}
		offer.Price = price
		if currency != "" {
			offer.Currency = currency
		}
		offer.Premium = strings.Contains(strings.ToLower(r.Price), "premium")
		return offer, nil
	}
	return registrar.Offer{}, fmt.Errorf("dynadot: no result for %q", domain)
}

// parsePrice reads Dynadot's "9.99 in USD" price strings.
func parsePrice(s string) (decimal.Decimal, string, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return decimal.Zero, "", fmt.Errorf("missing price")
	}
	price, err := registrar.ParsePrice(fields[0], decimal.Zero)
	if err != nil {
		return decimal.Zero, "", err
	}
	if price.IsZero() {
		return decimal.Zero, "", fmt.Errorf("missing price")
	}
	currency := ""
	for i, f := range fields {
		if strings.EqualFold(f, "in") && i+1 < len(fields) {
			currency = strings.ToUpper(strings.Trim(fields[i+1], ",.()"))
			break
		}
	}
	return price, currency, nil
}

type searchResponse struct {
	SearchResponse struct {
		ResponseCode  string `json:"ResponseCode"`
		Error         string `json:"Error"`
		SearchResults []struct {
			DomainName string `json:"DomainName"`
			Available  string `json:"Available"`
			Price      string `json:"Price"`
		} `json:"SearchResults"`
	} `json:"SearchResponse"`
}
