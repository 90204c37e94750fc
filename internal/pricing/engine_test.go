package pricing

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benithors/dotpricecli/internal/cache"
	"github.com/benithors/dotpricecli/internal/metrics"
	"github.com/benithors/dotpricecli/internal/registrar"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	if opts.Logger == nil {
		logger, _ := logtest.NewNullLogger()
		opts.Logger = logger
	}
	e, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestGetDomainPricing_CheapestAvailable(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Registrars: []registrar.Client{
		priced("a", "example.com", "10"),
		priced("b", "example.com", "8"),
		&fakeRegistrar{name: "c"},
	}})

	q, err := e.GetDomainPricing(context.Background(), "Example.com", "US", false)
	require.NoError(t, err)
	assert.True(t, q.Available)
	assert.Equal(t, "example.com", q.Domain)
	assert.Equal(t, "8", q.WholesalePrice.String())
	assert.Equal(t, "b", q.WholesaleRegistrar)
	assert.Equal(t, "10", q.CustomerPrice.String())
	assert.Equal(t, "2", q.MarginAmount.String())
	assert.Equal(t, "25", q.MarginPercent.String())
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, "$10.00", q.Display())
	assert.Equal(t, 3, q.RegistrarsChecked)
	assert.Nil(t, q.Registrars)
}

func TestGetDomainPricing_AllUnavailable(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Registrars: []registrar.Client{
		&fakeRegistrar{name: "a"},
		&fakeRegistrar{name: "b"},
	}})

	q, err := e.GetDomainPricing(context.Background(), "google.com", "US", false)
	require.NoError(t, err)
	assert.False(t, q.Available)
	assert.True(t, q.CustomerPrice.IsZero())
	assert.True(t, q.WholesalePrice.IsZero())
	assert.True(t, q.MarginAmount.IsZero())
	assert.Equal(t, NoRegistrar, q.WholesaleRegistrar)
	assert.Equal(t, "-", q.Display())
}

func TestGetDomainPricing_IndiaFloor(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Registrars: []registrar.Client{priced("a", "shop.in", "8")}})

	q, err := e.GetDomainPricing(context.Background(), "shop.in", "India", false)
	require.NoError(t, err)
	assert.Equal(t, "9.5", q.CustomerPriceUSD.String())
	assert.Equal(t, "788.5", q.CustomerPrice.String())
	assert.Equal(t, "INR", q.Currency)
	assert.Equal(t, "₹", q.Symbol)
	assert.True(t, q.FloorApplied)
	assert.Equal(t, "₹788.50", q.Display())
}

func TestGetDomainPricing_CeilingBinds(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Registrars: []registrar.Client{priced("a", "cheap.xyz", "1")}})

	q, err := e.GetDomainPricing(context.Background(), "cheap.xyz", "US", false)
	require.NoError(t, err)
	assert.Equal(t, "1.5", q.CustomerPrice.String())
	assert.True(t, q.CeilingApplied)
}

func TestGetDomainPricing_UnknownLocationUsesDefault(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Registrars: []registrar.Client{priced("a", "example.com", "10")}})

	q, err := e.GetDomainPricing(context.Background(), "example.com", "Atlantis", false)
	require.NoError(t, err)
	assert.Equal(t, DefaultLocation, q.Location)
	assert.Equal(t, "11.5", q.CustomerPrice.String())
}

func TestGetDomainPricing_IsolatesFailures(t *testing.T) {
	t.Parallel()

	slow := &fakeRegistrar{name: "slow", timeout: 30 * time.Millisecond, delay: time.Second}
	e := newEngine(t, Options{Registrars: []registrar.Client{
		failing("broken"),
		&fakeRegistrar{name: "buggy", panics: true},
		slow,
		priced("good", "example.com", "9"),
	}})

	q, err := e.GetDomainPricing(context.Background(), "example.com", "US", true)
	require.NoError(t, err)
	assert.True(t, q.Available)
	assert.Equal(t, "good", q.WholesaleRegistrar)
	require.Len(t, q.Registrars, 4)

	errs := map[string]string{}
	for _, r := range q.Registrars {
		errs[r.Registrar] = r.Error
	}
	assert.Contains(t, errs["broken"], "maintenance")
	assert.Contains(t, errs["buggy"], "panic")
	assert.Equal(t, "timeout", errs["slow"])
	assert.Empty(t, errs["good"])
}

func TestGetDomainPricing_OverallDeadline(t *testing.T) {
	t.Parallel()

	stuck := &fakeRegistrar{name: "stuck", timeout: time.Minute, delay: 2 * time.Second, ignore: true}
	e := newEngine(t, Options{
		Deadline:   50 * time.Millisecond,
		Registrars: []registrar.Client{stuck, priced("fast", "example.com", "9")},
	})

	start := time.Now()
	q, err := e.GetDomainPricing(context.Background(), "example.com", "US", true)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, "fast", q.WholesaleRegistrar)
	require.Len(t, q.Registrars, 2)
	assert.Equal(t, "fast", q.Registrars[0].Registrar)
	assert.Equal(t, "stuck", q.Registrars[1].Registrar)
	assert.Equal(t, "timeout", q.Registrars[1].Error)
}

func TestGetDomainPricing_AllRegistrarsFailed(t *testing.T) {
	t.Parallel()

	summary := metrics.NewSummary(logrus.New())
	e := newEngine(t, Options{
		Registrars: []registrar.Client{failing("a"), failing("b")},
		Metrics:    summary,
	})

	_, err := e.GetDomainPricing(context.Background(), "example.com", "US", false)
	require.ErrorIs(t, err, ErrAllRegistrarsFailed)
	assert.Contains(t, err.Error(), "a: http 503")
	assert.Equal(t, int64(1), summary.Snapshot().FailedRequests)
	assert.Equal(t, int64(1), summary.Snapshot().Registrars["b"][metrics.OutcomeError])
}

func TestGetDomainPricing_InvalidDomain(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Registrars: []registrar.Client{priced("a", "x.com", "1")}})
	_, err := e.GetDomainPricing(context.Background(), "localhost", "US", false)
	assert.ErrorIs(t, err, ErrInvalidDomain)
}

func TestGetDomainPricing_NonUSDOffer(t *testing.T) {
	t.Parallel()

	eur := &fakeRegistrar{name: "eu", offers: map[string]registrar.Offer{
		"example.de": {Available: true, Price: dec("9.3"), Currency: "EUR"},
	}}
	e := newEngine(t, Options{Registrars: []registrar.Client{eur}})

	q, err := e.GetDomainPricing(context.Background(), "example.de", "US", false)
	require.NoError(t, err)
	assert.Equal(t, "10", q.WholesalePrice.String())
}

func TestGetDomainPricing_CachesQuotes(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rc := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "t:")
	summary := metrics.NewSummary(logrus.New())

	a := priced("a", "example.com", "10")
	e := newEngine(t, Options{
		Registrars: []registrar.Client{a, &fakeRegistrar{name: "b"}},
		Cache:      rc,
		Metrics:    summary,
	})
	ctx := context.Background()

	first, err := e.GetDomainPricing(ctx, "example.com", "US", false)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 5*time.Minute, mr.TTL("t:domain_pricing:example.com:US"))

	second, err := e.GetDomainPricing(ctx, "example.com", "US", false)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.CustomerPrice.String(), second.CustomerPrice.String())
	assert.Equal(t, int32(1), a.calls.Load())
	assert.Equal(t, int64(1), summary.Snapshot().CacheHits)

	// Details always go to the registrars.
	detailed, err := e.GetDomainPricing(ctx, "example.com", "US", true)
	require.NoError(t, err)
	assert.False(t, detailed.FromCache)
	assert.Len(t, detailed.Registrars, 2)
	assert.Equal(t, int32(2), a.calls.Load())

	stored, err := mr.Get("t:domain_pricing:example.com:US")
	require.NoError(t, err)
	var decoded Quote
	require.NoError(t, json.Unmarshal([]byte(stored), &decoded))
	assert.Nil(t, decoded.Registrars)

	_, err = e.GetDomainPricing(ctx, "taken.com", "US", false)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("t:domain_pricing:taken.com:US"))
}

func TestGetDomainPricing_CacheFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rc := cache.NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "")
	mr.Close()

	logger, hook := logtest.NewNullLogger()
	e := newEngine(t, Options{
		Registrars: []registrar.Client{priced("a", "example.com", "10")},
		Cache:      rc,
		Logger:     logger,
	})

	q, err := e.GetDomainPricing(context.Background(), "example.com", "US", false)
	require.NoError(t, err)
	assert.True(t, q.Available)

	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "cache write failed" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestGetDomainPricing_CoalescesConcurrentRequests(t *testing.T) {
	t.Parallel()

	a := priced("a", "example.com", "10")
	a.block = make(chan struct{})
	e := newEngine(t, Options{Registrars: []registrar.Client{a}})

	var wg sync.WaitGroup
	quotes := make([]Quote, 8)
	for i := range quotes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := e.GetDomainPricing(context.Background(), "example.com", "US", false)
			assert.NoError(t, err)
			quotes[i] = q
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(a.block)
	wg.Wait()

	assert.Equal(t, int32(1), a.calls.Load())
	for _, q := range quotes {
		assert.Equal(t, "10", q.CustomerPrice.String())
	}
}

func TestGetDomainPricing_BreakerOpens(t *testing.T) {
	t.Parallel()

	bad := failing("bad")
	e := newEngine(t, Options{
		Registrars:      []registrar.Client{bad, priced("good", "example.com", "9")},
		BreakerFailures: 2,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := e.GetDomainPricing(ctx, "example.com", "US", true)
		require.NoError(t, err)
	}
	q, err := e.GetDomainPricing(ctx, "example.com", "US", true)
	require.NoError(t, err)
	assert.Equal(t, int32(2), bad.calls.Load())

	for _, r := range q.Registrars {
		if r.Registrar == "bad" {
			assert.Equal(t, "circuit open", r.Error)
		}
	}
}

func TestBulkCheckDomains(t *testing.T) {
	t.Parallel()

	a := &fakeRegistrar{name: "a", failFor: "two.com", offers: map[string]registrar.Offer{
		"one.com":   offer("10"),
		"three.com": offer("12"),
	}}
	b := &fakeRegistrar{name: "b", failFor: "two.com"}
	e := newEngine(t, Options{
		Registrars:      []registrar.Client{a, b},
		BulkConcurrency: 2,
	})

	got := e.BulkCheckDomains(context.Background(), []string{"one.com", "two.com", "three.com", "four.com"}, "US")
	require.Len(t, got, 3)
	assert.Equal(t, "one.com", got[0].Domain)
	assert.Equal(t, "three.com", got[1].Domain)
	assert.Equal(t, "four.com", got[2].Domain)
	assert.False(t, got[2].Available)
}

func TestBulkCheckDomains_Empty(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Options{Registrars: []registrar.Client{&fakeRegistrar{name: "a"}}})
	assert.Empty(t, e.BulkCheckDomains(context.Background(), nil, "US"))
}

func TestNew_Configuration(t *testing.T) {
	t.Parallel()

	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrConfiguration)

	rules := DefaultRules()
	delete(rules, DefaultLocation)
	_, err = New(Options{Registrars: []registrar.Client{&fakeRegistrar{name: "a"}}, Rules: rules})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = New(Options{Registrars: []registrar.Client{&fakeRegistrar{name: "a"}, &fakeRegistrar{name: "a"}}})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestGetDomainPricing_CancelledCallerLeavesFlightRunning(t *testing.T) {
	t.Parallel()

	slow := priced("a", "example.com", "10")
	slow.delay = 300 * time.Millisecond
	e := newEngine(t, Options{Registrars: []registrar.Client{slow}, Deadline: 2 * time.Second})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var (
		wg         sync.WaitGroup
		errA, errB error
		quoteB     Quote
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = e.GetDomainPricing(ctxA, "example.com", "US", false)
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		quoteB, errB = e.GetDomainPricing(context.Background(), "example.com", "US", false)
	}()
	time.Sleep(30 * time.Millisecond)
	cancelA()
	wg.Wait()

	require.ErrorIs(t, errA, context.Canceled)
	assert.NotErrorIs(t, errA, ErrAllRegistrarsFailed)
	require.NoError(t, errB)
	assert.Equal(t, "10", quoteB.CustomerPrice.String())
	assert.Equal(t, int32(1), slow.calls.Load())
}

func TestGetDomainPricing_CancellationIsNotARegistrarFailure(t *testing.T) {
	t.Parallel()

	summary := metrics.NewSummary(logrus.New())
	slow := priced("a", "example.com", "10")
	slow.delay = 300 * time.Millisecond
	e := newEngine(t, Options{
		Registrars:      []registrar.Client{slow},
		Metrics:         summary,
		BreakerFailures: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_, err := e.GetDomainPricing(ctx, "example.com", "US", true)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrAllRegistrarsFailed)

	// Give the abandoned lookup time to finish against the breaker.
	time.Sleep(350 * time.Millisecond)
	assert.Empty(t, summary.Snapshot().Registrars["a"])

	q, err := e.GetDomainPricing(context.Background(), "example.com", "US", true)
	require.NoError(t, err)
	assert.Equal(t, "a", q.WholesaleRegistrar)
	assert.Equal(t, int32(2), slow.calls.Load())
}
