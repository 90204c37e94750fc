package namecheap

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://api.namecheap.com/xml.response"

type Options struct {
	APIUser  string
	APIKey   string
	ClientIP string
	BaseURL  string
	Timeout  time.Duration

	// The check command does not return standard registration prices, so
	// non-premium names are priced at this configured rate.
	StandardPrice decimal.Decimal

	Transport http.RoundTripper
}

type Client struct {
	opts Options
	http *http.Client
}

func NewClient(opts Options) (*Client, error) {
	opts.APIUser = strings.TrimSpace(opts.APIUser)
	opts.APIKey = strings.TrimSpace(opts.APIKey)
	if opts.APIUser == "" || opts.APIKey == "" {
		return nil, fmt.Errorf("namecheap: %w (set NAMECHEAP_API_USER and NAMECHEAP_API_KEY)", registrar.ErrMissingCredentials)
	}
	if opts.ClientIP == "" {
		opts.ClientIP = "127.0.0.1"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if !opts.StandardPrice.IsPositive() {
		opts.StandardPrice = decimal.RequireFromString("8.99")
	}
	return &Client{opts: opts, http: registrar.HTTPClient(opts.Transport, opts.Timeout)}, nil
}

func (c *Client) Name() string { return "namecheap" }

func (c *Client) Timeout() time.Duration { return c.opts.Timeout }

func (c *Client) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return registrar.Offer{}, registrar.ErrEmptyDomain
	}

	q := url.Values{}
	q.Set("ApiUser", c.opts.APIUser)
	q.Set("ApiKey", c.opts.APIKey)
	q.Set("UserName", c.opts.APIUser)
	q.Set("ClientIp", c.opts.ClientIP)
	q.Set("Command", "namecheap.domains.check")
	q.Set("DomainList", domain)

	b, err := registrar.Do(ctx, c.http, c.Name(), registrar.Request{
		URL:     c.opts.BaseURL + "?" + q.Encode(),
		Headers: map[string]string{"accept": "application/xml"},
	})
	if err != nil {
		return registrar.Offer{}, err
	}

	var decoded apiResponse
	if err := xml.Unmarshal(b, &decoded); err != nil {
		return registrar.Offer{}, fmt.Errorf("namecheap: decode error: %w", err)
	}
	if !strings.EqualFold(decoded.Status, "OK") {
		msg := "unknown error"
		if len(decoded.Errors) > 0 && strings.TrimSpace(decoded.Errors[0].Text) != "" {
			msg = strings.TrimSpace(decoded.Errors[0].Text)
		}
		return registrar.Offer{}, fmt.Errorf("namecheap: %s", msg)
	}

	for _, r := range decoded.Results {
		if !strings.EqualFold(r.Domain, domain) {
			continue
		}
		offer := registrar.Offer{
			Available: registrar.YesNo(r.Available),
			Premium:   registrar.YesNo(r.IsPremiumName),
			Currency:  "USD",
		}
		if !offer.Available {
			return offer, nil
		}
		offer.Price = c.opts.StandardPrice
		if offer.Premium {
			p, err := registrar.ParsePrice(r.PremiumRegistrationPrice, decimal.Zero)
			if err != nil {
				return registrar.Offer{}, fmt.Errorf("namecheap: %w", err)
			}
			if p.IsPositive() {
				offer.Price = p
			}
		}
		return offer, nil
	}
	return registrar.Offer{}, fmt.Errorf("namecheap: no result for %q", domain)
}

type apiResponse struct {
	XMLName xml.Name      `xml:"ApiResponse"`
	Status  string        `xml:"Status,attr"`
	Errors  []apiError    `xml:"Errors>Error"`
	Results []checkResult `xml:"CommandResponse>DomainCheckResult"`
}

type apiError struct {
	Number string `xml:"Number,attr"`
	Text   string `xml:",chardata"`
}

type checkResult struct {
	Domain                   string `xml:"Domain,attr"`
	Available                string `xml:"Available,attr"`
	IsPremiumName            string `xml:"IsPremiumName,attr"`
	PremiumRegistrationPrice string `xml:"PremiumRegistrationPrice,attr"`
}
