package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benithors/dotpricecli/internal/metrics"
	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const (
	errTimeout   = "timeout"
	errCancelled = "cancelled"
)

// Causes attached to the engine's own deadlines. Any other cause on a
// done context means the caller gave up.
var (
	errFanOutDeadline  = errors.New("pricing deadline exceeded")
	errRegistrarExpiry = errors.New("registrar timeout exceeded")
	errCallerGone      = errors.New("caller gave up")
)

type result struct {
	idx   int
	quote registrar.Quote
}

// fanOut queries every registrar at once and returns one record per
// registrar in completion order. Registrars still running at the deadline
// are recorded as timeouts; if the caller cancels first they are recorded
// as cancelled and left out of the metrics.
func (e *Engine) fanOut(ctx context.Context, domain string) []registrar.Quote {
	dctx, cancel := context.WithTimeoutCause(ctx, e.opts.Deadline, errFanOutDeadline)
	defer cancel()

	start := time.Now()
	n := len(e.opts.Registrars)
	results := make(chan result, n)
	for i := range e.opts.Registrars {
		go func(i int) {
			results <- result{idx: i, quote: e.check(dctx, i, domain)}
		}(i)
	}

	quotes := make([]registrar.Quote, 0, n)
	done := make([]bool, n)
	take := func(r result) {
		done[r.idx] = true
		quotes = append(quotes, r.quote)
	}
	for len(quotes) < n {
		select {
		case r := <-results:
			take(r)
		case <-dctx.Done():
			drainReady(results, take)
			reason := errTimeout
			if ctx.Err() != nil {
				reason = errCancelled
			}
			for i, c := range e.opts.Registrars {
				if done[i] {
					continue
				}
				elapsed := time.Since(start)
				if reason == errTimeout {
					e.opts.Metrics.RecordRegistrar(c.Name(), metrics.OutcomeTimeout, elapsed)
				}
				quotes = append(quotes, registrar.Quote{
					Registrar: c.Name(),
					Domain:    domain,
					Currency:  "USD",
					LatencyMs: elapsed.Milliseconds(),
					Error:     reason,
				})
			}
			return quotes
		}
	}
	return quotes
}

// drainReady takes the results already buffered in the channel so a
// registrar that answered just before the deadline keeps its answer.
func drainReady(results <-chan result, take func(result)) {
	for {
		select {
		case r := <-results:
			take(r)
		default:
			return
		}
	}
}

// check runs one registrar behind its breaker and timeout. It never panics
// and never returns without a record.
func (e *Engine) check(ctx context.Context, idx int, domain string) registrar.Quote {
	c := e.opts.Registrars[idx]
	name := c.Name()

	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = registrar.DefaultTimeout
	}
	rctx, cancel := context.WithTimeoutCause(ctx, timeout, errRegistrarExpiry)
	defer cancel()

	start := time.Now()
	offer, err := e.breakers[idx].Execute(func() (o registrar.Offer, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		o, err = c.Check(rctx, domain)
		if err != nil && callerGone(rctx) {
			err = fmt.Errorf("%w: %w", errCallerGone, err)
		}
		return o, err
	})
	elapsed := time.Since(start)

	q := registrar.Quote{
		Registrar: name,
		Domain:    domain,
		Currency:  "USD",
		LatencyMs: elapsed.Milliseconds(),
	}
	if err == nil && offer.Available {
		q.Price, err = e.toUSD(offer)
	}
	if err != nil {
		q.Error = errorText(rctx, err)
		switch q.Error {
		case errCancelled:
		case errTimeout:
			e.opts.Metrics.RecordRegistrar(name, metrics.OutcomeTimeout, elapsed)
		default:
			e.opts.Metrics.RecordRegistrar(name, metrics.OutcomeError, elapsed)
		}
		e.log.WithFields(logrus.Fields{
			"registrar": name,
			"domain":    domain,
			"error":     q.Error,
		}).Debug("registrar lookup failed")
		return q
	}

	q.Available = offer.Available
	q.Premium = offer.Premium
	outcome := metrics.OutcomeUnavailable
	if q.Available {
		outcome = metrics.OutcomeAvailable
	}
	e.opts.Metrics.RecordRegistrar(name, outcome, elapsed)
	return q
}

func (e *Engine) toUSD(o registrar.Offer) (decimal.Decimal, error) {
	code := strings.ToUpper(strings.TrimSpace(o.Currency))
	if code == "" || code == "USD" {
		return o.Price, nil
	}
	return e.opts.Rates.ToUSD(o.Price, code)
}

func callerGone(ctx context.Context) bool {
	cause := context.Cause(ctx)
	return cause != nil && !errors.Is(cause, errFanOutDeadline) && !errors.Is(cause, errRegistrarExpiry)
}

func errorText(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, errCallerGone), callerGone(ctx):
		return errCancelled
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return errTimeout
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit open"
	default:
		return err.Error()
	}
}
