package registrar

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Client is implemented once per registrar. Each adapter turns its
// registrar's request/response shape into an Offer.
type Client interface {
	Name() string
	Timeout() time.Duration
	Check(ctx context.Context, domain string) (Offer, error)
}

// Offer is the normalized availability/price answer of one registrar.
type Offer struct {
	Available bool
	Price     decimal.Decimal // registration price for one year
	Currency  string          // e.g. USD
	Premium   bool
}

// Quote is one registrar's answer for one domain, including failures.
type Quote struct {
	Registrar string          `json:"registrar"`
	Domain    string          `json:"domain"`
	Available bool            `json:"available"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Premium   bool            `json:"premium"`
	LatencyMs int64           `json:"latency_ms"`
	Error     string          `json:"error,omitempty"`
}

func (q Quote) Failed() bool { return q.Error != "" }

var (
	ErrMissingCredentials = errors.New("registrar: missing credentials")
	ErrEmptyDomain        = errors.New("registrar: empty domain")
)

const DefaultTimeout = 10 * time.Second
