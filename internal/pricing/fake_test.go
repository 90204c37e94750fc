package pricing

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
)

// fakeRegistrar answers from a per-domain table.
type fakeRegistrar struct {
	name    string
	timeout time.Duration
	offers  map[string]registrar.Offer
	err     error
	failFor string
	delay   time.Duration
	ignore  bool // ignore ctx while delaying
	panics  bool
	block   chan struct{}
	calls   atomic.Int32
}

func (f *fakeRegistrar) Name() string { return f.name }

func (f *fakeRegistrar) Timeout() time.Duration {
	if f.timeout <= 0 {
		return time.Second
	}
	return f.timeout
}

func (f *fakeRegistrar) Check(ctx context.Context, domain string) (registrar.Offer, error) {
	f.calls.Add(1)
	if f.panics {
		panic("adapter bug")
	}
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		if f.ignore {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return registrar.Offer{}, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return registrar.Offer{}, f.err
	}
	if f.failFor == domain {
		return registrar.Offer{}, errors.New("upstream error")
	}
	if o, ok := f.offers[domain]; ok {
		return o, nil
	}
	return registrar.Offer{Available: false, Currency: "USD"}, nil
}

func offer(price string) registrar.Offer {
	return registrar.Offer{Available: true, Price: decimal.RequireFromString(price), Currency: "USD"}
}

func priced(name, domain, price string) *fakeRegistrar {
	return &fakeRegistrar{name: name, offers: map[string]registrar.Offer{domain: offer(price)}}
}

func failing(name string) *fakeRegistrar {
	return &fakeRegistrar{name: name, err: errors.New("http 503: maintenance")}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
