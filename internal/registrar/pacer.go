package registrar

import (
	"context"
	"sync"
	"time"
)

// Pacer bounds in-flight requests and spaces them by a minimum delay, for
// registrars that publish strict rate limits.
type Pacer struct {
	sem chan struct{}

	mu              sync.Mutex
	minDelay        time.Duration
	dynamicMinDelay time.Duration
	nextRequestAt   time.Time
}

func NewPacer(maxConcurrent int, minDelay time.Duration) *Pacer {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pacer{
		sem:      make(chan struct{}, maxConcurrent),
		minDelay: minDelay,
	}
}

// Acquire waits for a slot and for the pacing delay. The returned func
// releases the slot.
func (p *Pacer) Acquire(ctx context.Context) (func(), error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	release := func() { <-p.sem }

	if err := p.throttle(ctx); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (p *Pacer) throttle(ctx context.Context) error {
	p.mu.Lock()
	delay := p.minDelay
	if p.dynamicMinDelay > delay {
		delay = p.dynamicMinDelay
	}
	scheduled := time.Now()
	if scheduled.Before(p.nextRequestAt) {
		scheduled = p.nextRequestAt
	}
	p.nextRequestAt = scheduled.Add(delay)
	p.mu.Unlock()

	wait := time.Until(scheduled)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Observe widens the delay from a provider's advertised limit of `limit`
// requests per `window`, capped at 5s.
func (p *Pacer) Observe(window time.Duration, limit int) {
	if window <= 0 || limit <= 0 {
		return
	}
	per := window / time.Duration(limit)
	if per <= 0 {
		return
	}
	if per > 5*time.Second {
		per = 5 * time.Second
	}
	p.mu.Lock()
	if per > p.dynamicMinDelay {
		p.dynamicMinDelay = per
	}
	p.mu.Unlock()
}
