package godaddy

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

const (
	defaultBaseURL = "https://api.godaddy.com"
	OTEBaseURL     = "https://api.ote-godaddy.com"
)

// GoDaddy reports prices in micro-units of the currency.
var microUnits = decimal.NewFromInt(1_000_000)

type Options struct {
	APIKey    string
	APISecret string
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
	opts.APISecret = strings.TrimSpace(opts.APISecret)
	if opts.APIKey == "" || opts.APISecret == "" {
		return nil, fmt.Errorf("godaddy: %w (set GODADDY_API_KEY and GODADDY_API_SECRET)", registrar.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts, http: registrar.HTTPClient(opts.Transport, opts.Timeout)}, nil
}

func (c *Client) Name() string { return "godaddy" }

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return registrar.Offer{}, registrar.ErrEmptyDomain
	}

	q := url.Values{}
	q.Set("domain", domain)
	q.Set("checkType", "FAST")
	q.Set("forTransfer", "false")

	b, err := registrar.Do(ctx, c.http, c.Name(), registrar.Request{
		URL: strings.TrimRight(c.opts.BaseURL, "/") + "/v1/domains/available?" + q.Encode(),
		Headers: map[string]string{
			"authorization": "sso-key " + c.opts.APIKey + ":" + c.opts.APISecret,
			"accept":        "application/json",
		},
	})
	if err != nil {
		return registrar.Offer{}, err
	}

	var decoded availableResponse
	if err := registrar.DecodeJSON(c.Name(), b, &decoded); err != nil {
		return registrar.Offer{}, err
	}

	offer := registrar.Offer{
		Available: decoded.Available,
		Currency:  strings.ToUpper(strings.TrimSpace(decoded.Currency)),
	}
	if offer.Currency == "" {
		offer.Currency = "USD"
	}
	if !offer.Available {
		return offer, nil
	}
	if decoded.Price <= 0 {
		return registrar.Offer{}, fmt.Errorf("godaddy: missing price")
	}
	offer.Price = decimal.NewFromInt(decoded.Price).Div(microUnits)
	if decoded.Period > 1 {
		offer.Price = offer.Price.Div(decimal.NewFromInt(int64(decoded.Period)))
	}
	return offer, nil
}

type availableResponse struct {
	Available  bool   `json:"available"`
	Currency   string `json:"currency"`
	Definitive bool   `json:"definitive"`
	Domain     string `json:"domain"`
	Period     int    `json:"period"`
	Price      int64  `json:"price"`
}
