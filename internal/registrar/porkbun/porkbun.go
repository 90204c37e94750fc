package porkbun

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.porkbun.com/api/json/v3"

type Options struct {
	APIKey       string
	SecretAPIKey string
	BaseURL      string
	Timeout      time.Duration

	// Client-side pacing to reduce the chance of hitting provider limits.
	MinDelay      time.Duration
	MaxConcurrent int

	Transport http.RoundTripper
}

type Client struct {
	opts  Options
	http  *http.Client
	pacer *registrar.Pacer
}

func NewClient(opts Options) (*Client, error) {
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	opts.SecretAPIKey = strings.TrimSpace(opts.SecretAPIKey)
	if opts.APIKey == "" || opts.SecretAPIKey == "" {
		return nil, fmt.Errorf("porkbun: %w (set PORKBUN_API_KEY and PORKBUN_SECRET_API_KEY)", registrar.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.MinDelay <= 0 {
		opts.MinDelay = 200 * time.Millisecond
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}

	return &Client{
		opts:  opts,
		http:  registrar.HTTPClient(opts.Transport, opts.Timeout),
		pacer: registrar.NewPacer(opts.MaxConcurrent, opts.MinDelay),
	}, nil
}

func (c *Client) Name() string { return "porkbun" }

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return registrar.Offer{}, registrar.ErrEmptyDomain
	}

	release, err := c.pacer.Acquire(ctx)
	if err != nil {
		return registrar.Offer{}, err
	}
	defer release()

	b, err := registrar.Do(ctx, c.http, c.Name(), registrar.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(c.opts.BaseURL, "/") + "/domain/checkDomain/" + url.PathEscape(domain),
		Body: map[string]string{
			"apikey":       c.opts.APIKey,
			"secretapikey": c.opts.SecretAPIKey,
		},
		Headers: map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return registrar.Offer{}, err
	}

	var decoded checkDomainResponse
	if err := registrar.DecodeJSON(c.Name(), b, &decoded); err != nil {
		return registrar.Offer{}, err
	}
	if strings.ToUpper(decoded.Status) != "SUCCESS" {
		msg := strings.TrimSpace(decoded.Message)
		if msg == "" {
			msg = "unknown error"
		}
		return registrar.Offer{}, fmt.Errorf("porkbun: %s", msg)
	}

	if ttl, limit := parseLimits(decoded.Limits); ttl > 0 && limit > 0 {
		c.pacer.Observe(time.Duration(ttl)*time.Second, limit)
	}

	offer := registrar.Offer{
		Available: registrar.YesNo(decoded.Response.Avail),
		Premium:   registrar.YesNo(decoded.Response.Premium),
		Currency:  "USD",
	}
	if !offer.Available {
		return offer, nil
	}
	// Promo prices only apply to the first year; use the regular rate.
	raw := decoded.Response.Price
	if registrar.YesNo(decoded.Response.FirstYearPromo) && strings.TrimSpace(decoded.Response.RegularPrice) != "" {
		raw = decoded.Response.RegularPrice
	}
	price, err := registrar.ParsePrice(raw, decimal.Zero)
	if err != nil {
		return registrar.Offer{}, fmt.Errorf("porkbun: %w", err)
	}
	if price.IsZero() {
		return registrar.Offer{}, fmt.Errorf("porkbun: missing price")
	}
	offer.Price = price
	return offer, nil
}

type checkDomainResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Response struct {
		Avail          string `json:"avail"`
		Price          string `json:"price"`
		RegularPrice   string `json:"regularPrice"`
		Premium        string `json:"premium"`
		MinDuration    int    `json:"minDuration"`
		FirstYearPromo string `json:"firstYearPromo"`
	} `json:"response"`
	Limits apiLimits `json:"limits"`
}

type apiLimits struct {
	TTL   string `json:"TTL"`
	Limit string `json:"limit"`
	Used  int    `json:"used"`
}

func parseLimits(l apiLimits) (ttlSeconds, limit int) {
	ttlSeconds, _ = strconv.Atoi(strings.TrimSpace(l.TTL))
	limit, _ = strconv.Atoi(strings.TrimSpace(l.Limit))
	return ttlSeconds, limit
}
