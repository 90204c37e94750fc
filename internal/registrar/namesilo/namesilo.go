package namesilo

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

const defaultBaseURL = "https://www.namesilo.com/api"

// replySuccess is the reply code NameSilo uses for a completed operation.
const replySuccess = 300

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
		return nil, fmt.Errorf("namesilo: %w (set NAMESILO_API_KEY)", registrar.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts, http: registrar.HTTPClient(opts.Transport, opts.Timeout)}, nil
}

func (c *Client) Name() string { return "namesilo" }

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return registrar.Offer{}, registrar.ErrEmptyDomain
	}

	q := url.Values{}
	q.Set("version", "1")
	q.Set("type", "json")
	q.Set("key", c.opts.APIKey)
	q.Set("domains", domain)

	b, err := registrar.Do(ctx, c.http, c.Name(), registrar.Request{
		URL:     strings.TrimRight(c.opts.BaseURL, "/") + "/checkRegisterAvailability?" + q.Encode(),
		Headers: map[string]string{"accept": "application/json"},
	})
	if err != nil {
		return registrar.Offer{}, err
	}

	var decoded availabilityResponse
	if err := registrar.DecodeJSON(c.Name(), b, &decoded); err != nil {
		return registrar.Offer{}, err
	}
	if decoded.Reply.Code != replySuccess {
		msg := strings.TrimSpace(decoded.Reply.Detail)
		if msg == "" {
			msg = "unknown error"
		}
		return registrar.Offer{}, fmt.Errorf("namesilo: code %d: %s", decoded.Reply.Code, msg)
	}

	for _, a := range decoded.Reply.Available {
		if !strings.EqualFold(a.Domain, domain) {
			continue
		}
		price, err := registrar.ParsePrice(a.Price.String(), decimal.Zero)
		if err != nil {
			return registrar.Offer{}, fmt.Errorf("namesilo: %w", err)
		}
		if price.IsZero() {
			return registrar.Offer{}, fmt.Errorf("namesilo: missing price")
		}
		return registrar.Offer{
			Available: true,
			Price:     price,
			Currency:  "USD",
			Premium:   a.Premium == 1,
		}, nil
	}
	return registrar.Offer{Available: false, Currency: "USD"}, nil
}

type availabilityResponse struct {
	Reply struct {
		Code      int    `json:"code"`
		Detail    string `json:"detail"`
		Available []struct {
			Domain   string      `json:"domain"`
			Price    json.Number `json:"price"`
			Premium  int         `json:"premium"`
			Duration int         `json:"duration"`
		} `json:"available"`
		Unavailable []string `json:"unavailable"`
	} `json:"reply"`
}
