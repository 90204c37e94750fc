package namecom

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.name.com"

type Options struct {
	Username  string
	Token     string
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
}

type Client struct {
	opts Options
	http *http.Client
	auth string
}

func NewClient(opts Options) (*Client, error) {
	opts.Username = strings.TrimSpace(opts.Username)
	opts.Token = strings.TrimSpace(opts.Token)
	if opts.Username == "" || opts.Token == "" {
		return nil, fmt.Errorf("namecom: %w (set NAMECOM_USERNAME and NAMECOM_TOKEN)", registrar.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 8 * time.Second
	}
	return &Client{
		opts: opts,
		http: registrar.HTTPClient(opts.Transport, opts.Timeout),
		auth: "Basic " + base64.StdEncoding.EncodeToString([]byte(opts.Username+":"+opts.Token)),
	}, nil
}

func (c *Client) Name() string { return "namecom" }

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return registrar.Offer{}, registrar.ErrEmptyDomain
	}

	b, err := registrar.Do(ctx, c.http, c.Name(), registrar.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(c.opts.BaseURL, "/") + "/v4/domains:checkAvailability",
		Body:   map[string][]string{"domainNames": {domain}},
		Headers: map[string]string{
			"authorization": c.auth,
			"accept":        "application/json",
		},
	})
	if err != nil {
		return registrar.Offer{}, err
	}

	var decoded checkResponse
	if err := registrar.DecodeJSON(c.Name(), b, &decoded); err != nil {
		return registrar.Offer{}, err
	}
	for _, r := range decoded.Results {
		if !strings.EqualFold(r.DomainName, domain) {
			continue
		}
		offer := registrar.Offer{
			Available: r.Purchasable,
			Premium:   r.Premium,
			Currency:  "USD",
		}
		if !offer.Available {
			return offer, nil
		}
		if r.PurchasePrice <= 0 {
			return registrar.Offer{}, fmt.Errorf("namecom: missing purchasePrice")
		}
		offer.Price = decimal.NewFromFloat(r.PurchasePrice)
		return offer, nil
	}
	// name.com omits unknown names from results.
	return registrar.Offer{Available: false, Currency: "USD"}, nil
}

type checkResponse struct {
	Results []struct {
		DomainName    string  `json:"domainName"`
		Purchasable   bool    `json:"purchasable"`
		Premium       bool    `json:"premium"`
		PurchasePrice float64 `json:"purchasePrice"`
		PurchaseType  string  `json:"purchaseType"`
		RenewalPrice  float64 `json:"renewalPrice"`
	} `json:"results"`
}
