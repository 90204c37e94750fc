// Package pricing queries every configured registrar for a domain, picks
// the cheapest available wholesale offer and applies location markup.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benithors/dotpricecli/internal/cache"
	"github.com/benithors/dotpricecli/internal/currency"
	"github.com/benithors/dotpricecli/internal/logging"
	"github.com/benithors/dotpricecli/internal/metrics"
	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDeadline            = 20 * time.Second
	DefaultTTLAvailable        = 5 * time.Minute
	DefaultTTLUnavailable      = time.Hour
	DefaultBreakerFailures     = 5
	DefaultBreakerOpenDuration = 30 * time.Second
)

type CacheTTL struct {
	Available   time.Duration
	Unavailable time.Duration
}

type Options struct {
	Registrars []registrar.Client
	Rules      Rules
	Rates      currency.Rates
	Policy     Policy

	Cache   cache.Cache      // optional
	Metrics metrics.Recorder // optional
	Logger  logrus.FieldLogger

	// Deadline bounds a whole fan-out; each registrar also has its own
	// timeout.
	Deadline time.Duration
	CacheTTL CacheTTL

	// Consecutive failures before a registrar's breaker opens, and how
	// long it stays open.
	BreakerFailures     uint32
	BreakerOpenDuration time.Duration

	// BulkConcurrency limits domains priced at once by BulkCheckDomains.
	// Zero means no limit.
	BulkConcurrency int

	// Transport is the pooled transport shared by the registrars, released
	// on Close.
	Transport *http.Transport
}

type Engine struct {
	opts     Options
	breakers []*gobreaker.CircuitBreaker[registrar.Offer]
	group    singleflight.Group
	log      *logrus.Entry
}

func New(opts Options) (*Engine, error) {
	if len(opts.Registrars) == 0 {
		return nil, fmt.Errorf("%w: no registrars configured", ErrConfiguration)
	}
	if opts.Rules == nil {
		opts.Rules = DefaultRules()
	}
	if opts.Rates == nil {
		opts.Rates = currency.DefaultRates()
	}
	if opts.Policy.MinMargin.IsZero() && opts.Policy.MaxMarkupPercent.IsZero() {
		opts.Policy = DefaultPolicy()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := opts.Rules.Validate(opts.Rates); err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.CacheTTL.Available <= 0 {
		opts.CacheTTL.Available = DefaultTTLAvailable
	}
	if opts.CacheTTL.Unavailable <= 0 {
		opts.CacheTTL.Unavailable = DefaultTTLUnavailable
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerOpenDuration <= 0 {
		opts.BreakerOpenDuration = DefaultBreakerOpenDuration
	}

	e := &Engine{
		opts: opts,
		log:  logging.Component(opts.Logger, "pricing"),
	}

	seen := make(map[string]bool, len(opts.Registrars))
	for _, c := range opts.Registrars {
		if c == nil {
			return nil, fmt.Errorf("%w: nil registrar", ErrConfiguration)
		}
		if seen[c.Name()] {
			return nil, fmt.Errorf("%w: duplicate registrar %q", ErrConfiguration, c.Name())
		}
		seen[c.Name()] = true
		e.breakers = append(e.breakers, e.newBreaker(c.Name()))
	}
	return e, nil
}

func (e *Engine) newBreaker(name string) *gobreaker.CircuitBreaker[registrar.Offer] {
	failures := e.opts.BreakerFailures
	return gobreaker.NewCircuitBreaker[registrar.Offer](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     e.opts.BreakerOpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up says nothing about the registrar.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.WithFields(logrus.Fields{
				"registrar": name,
				"from":      from.String(),
				"to":        to.String(),
			}).Warn("registrar circuit breaker changed state")
		},
	})
}

// Registrars returns the configured registrar names in order.
func (e *Engine) Registrars() []string {
	out := make([]string, 0, len(e.opts.Registrars))
	for _, c := range e.opts.Registrars {
		out = append(out, c.Name())
	}
	return out
}

func (e *Engine) Rules() Rules { return e.opts.Rules }

func (e *Engine) Close() error {
	if e.opts.Transport != nil {
		e.opts.Transport.CloseIdleConnections()
	}
	if e.opts.Cache != nil {
		return e.opts.Cache.Close()
	}
	return nil
}

func cacheKey(domain, location string) string {
	return "domain_pricing:" + domain + ":" + location
}

// GetDomainPricing prices domain for location. A domain no registrar
// offers yields an unavailable quote, not an error.
func (e *Engine) GetDomainPricing(ctx context.Context, domain, location string, includeDetails bool) (Quote, error) {
	start := time.Now()

	domain = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
	if domain == "" || !strings.Contains(domain, ".") {
		e.opts.Metrics.RecordRequest(false, time.Since(start))
		return Quote{}, fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	location, rule := e.opts.Rules.Lookup(location)
	key := cacheKey(domain, location)

	if includeDetails {
		return e.price(ctx, domain, location, rule, true, start)
	}

	if q, ok := e.cached(ctx, key); ok {
		e.opts.Metrics.RecordCacheHit()
		e.opts.Metrics.RecordRequest(true, time.Since(start))
		return q, nil
	}

	// The flight outlives any one caller; fanOut bounds it by the deadline.
	flight := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		return e.price(flight, domain, location, rule, false, start)
	})
	select {
	case <-ctx.Done():
		e.opts.Metrics.RecordRequest(false, time.Since(start))
		return Quote{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Quote{}, res.Err
		}
		return res.Val.(Quote), nil
	}
}

func (e *Engine) cached(ctx context.Context, key string) (Quote, bool) {
	if e.opts.Cache == nil {
		return Quote{}, false
	}
	b, err := e.opts.Cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			e.log.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		return Quote{}, false
	}
	var q Quote
	if err := json.Unmarshal(b, &q); err != nil {
		e.log.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		return Quote{}, false
	}
	q.FromCache = true
	return q, true
}

func (e *Engine) store(ctx context.Context, key string, q Quote) {
	if e.opts.Cache == nil {
		return
	}
	q.Registrars = nil
	b, err := json.Marshal(q)
	if err != nil {
		e.log.WithError(err).Warn("cache encode failed")
		return
	}
	ttl := e.opts.CacheTTL.Unavailable
	if q.Available {
		ttl = e.opts.CacheTTL.Available
	}
	if err := e.opts.Cache.Set(ctx, key, b, ttl); err != nil {
		e.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

func (e *Engine) price(ctx context.Context, domain, location string, rule LocationRule, includeDetails bool, start time.Time) (Quote, error) {
	quotes := e.fanOut(ctx, domain)
	if err := ctx.Err(); err != nil {
		e.opts.Metrics.RecordRequest(false, time.Since(start))
		return Quote{}, err
	}

	if allFailed(quotes) {
		e.opts.Metrics.RecordRequest(false, time.Since(start))
		e.log.WithField("domain", domain).Error("all registrars failed")
		return Quote{}, fmt.Errorf("%w for %s: %s", ErrAllRegistrarsFailed, domain, failureSummary(quotes))
	}

	q := unavailableQuote(domain, location, rule)
	if best, ok := cheapest(quotes); ok {
		p, err := ApplyMarkup(best.Price, rule, e.opts.Rates, e.opts.Policy)
		if err != nil {
			e.opts.Metrics.RecordRequest(false, time.Since(start))
			return Quote{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		q.Available = true
		q.Premium = best.Premium
		q.WholesalePrice = best.Price
		q.WholesaleRegistrar = best.Registrar
		q.CustomerPrice = p.Customer
		q.CustomerPriceUSD = p.CustomerUSD
		q.MarginAmount = p.Margin
		q.MarginPercent = p.MarginPercent
		q.FloorApplied = p.FloorApplied
		q.CeilingApplied = p.CeilingApplied
	}
	q.RegistrarsChecked = len(quotes)
	q.CheckedAt = time.Now().UTC()
	q.LatencyMs = time.Since(start).Milliseconds()
	if includeDetails {
		q.Registrars = quotes
	}

	e.store(ctx, cacheKey(domain, location), q)
	e.opts.Metrics.RecordRequest(true, time.Since(start))

	e.log.WithFields(logrus.Fields{
		"domain":    domain,
		"location":  location,
		"available": q.Available,
		"registrar": q.WholesaleRegistrar,
		"price":     q.CustomerPrice.String(),
		"currency":  q.Currency,
	}).Debug("priced domain")
	return q, nil
}

// BulkCheckDomains prices every domain concurrently. Domains that fail are
// logged and left out; the rest keep their input order.
func (e *Engine) BulkCheckDomains(ctx context.Context, domains []string, location string) []Quote {
	results := make([]*Quote, len(domains))

	var g errgroup.Group
	if e.opts.BulkConcurrency > 0 {
		g.SetLimit(e.opts.BulkConcurrency)
	}
	for i, d := range domains {
		g.Go(func() error {
			q, err := e.GetDomainPricing(ctx, d, location, false)
			if err != nil {
				e.log.WithError(err).WithField("domain", d).Warn("bulk pricing skipped domain")
				return nil
			}
			results[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Quote, 0, len(domains))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}
