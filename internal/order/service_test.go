package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benithors/dotpricecli/internal/pricing"
	"github.com/benithors/dotpricecli/internal/verify"
)

type harness struct {
	svc    *Service
	store  *RedisStore
	queue  *chanQueue
	pricer *fakePricer
	hook   *test.Hook
}

func newHarness(t *testing.T, gw Gateway) *harness {
	t.Helper()
	store, _ := newRedisStore(t)
	logger, hook := test.NewNullLogger()
	h := &harness{store: store, queue: &chanQueue{}, pricer: &fakePricer{quote: availableQuote()}, hook: hook}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceOptions{
		Store:   store,
		Queue:   h.queue,
		Pricer:  h.pricer,
		Gateway: gw,
		Logger:  logger,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	h.svc = svc
	return h
}

func createReq() CreateRequest {
	return CreateRequest{
		VendorID:   "vendor-1",
		Domain:     "Acme.COM",
		Location:   "India",
		Contact:    validContact(),
		Method:     MethodStripe,
		TemplateID: 7,
	}
}

func TestService_Create(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	o, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)
	assert.Equal(t, "acme.com", o.Domain)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, "porkbun", o.Registrar)
	assert.Equal(t, "INR", o.Currency)
	assert.True(t, o.Payment.Amount.Equal(decimal.RequireFromString("788.5")))
	assert.Equal(t, 1, o.Years)

	stored, err := h.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)

	entry := h.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "order created", entry.Message)
	assert.Equal(t, "orders", entry.Data["component"])
}

func TestService_CreateRejects(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	req := createReq()
	req.Domain = "nodot"
	_, err := h.svc.Create(ctx, req)
	assert.Error(t, err)

	req = createReq()
	req.Contact.Email = "bad"
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = createReq()
	req.Method = "cash"
	_, err = h.svc.Create(ctx, req)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 0, h.pricer.calls)

	h.pricer.quote = pricing.Quote{WholesaleRegistrar: pricing.NoRegistrar}
	_, err = h.svc.Create(ctx, createReq())
	assert.ErrorIs(t, err, ErrDomainUnavailable)

	h.pricer.err = pricing.ErrAllRegistrarsFailed
	_, err = h.svc.Create(ctx, createReq())
	assert.ErrorIs(t, err, pricing.ErrAllRegistrarsFailed)
}

func TestService_PayQueuesJob(t *testing.T) {
	h := newHarness(t, NewSimulatedGateway(0, 0))
	ctx := context.Background()

	o, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)

	paid, err := h.svc.Pay(ctx, o.ID, PaymentDetails{})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, paid.Status)
	assert.Equal(t, PaymentCompleted, paid.PaymentStatus)
	assert.Equal(t, 25, paid.Progress)
	assert.Regexp(t, `^pi_[0-9a-f]{16}$`, paid.PaymentID)

	require.Len(t, h.queue.jobs, 1)
	assert.Equal(t, o.ID, h.queue.jobs[0].OrderID)

	// Only pending orders can be paid or cancelled.
	_, err = h.svc.Pay(ctx, o.ID, PaymentDetails{})
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = h.svc.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

// gatedStore holds every Get until n callers have read the order, so
// concurrent payments all start from the same pending snapshot.
type gatedStore struct {
	*RedisStore
	ready sync.WaitGroup
}

func (g *gatedStore) Get(ctx context.Context, id string) (*Order, error) {
	o, err := g.RedisStore.Get(ctx, id)
	g.ready.Done()
	g.ready.Wait()
	return o, err
}

type countingGateway struct {
	Gateway
	charges atomic.Int32
}

func (c *countingGateway) Charge(ctx context.Context, o *Order) (Charge, error) {
	c.charges.Add(1)
	return c.Gateway.Charge(ctx, o)
}

func TestService_ConcurrentPayChargesOnce(t *testing.T) {
	h := newHarness(t, NewSimulatedGateway(0, 0))
	ctx := context.Background()
	o, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)

	gated := &gatedStore{RedisStore: h.store}
	gated.ready.Add(2)
	gw := &countingGateway{Gateway: NewSimulatedGateway(0, 0)}
	svc, err := NewService(ServiceOptions{Store: gated, Queue: h.queue, Pricer: h.pricer, Gateway: gw})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Pay(ctx, o.ID, PaymentDetails{})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), gw.charges.Load())
	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidState)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Len(t, h.queue.jobs, 1)
}

func TestService_PayMasksCard(t *testing.T) {
	h := newHarness(t, NewSimulatedGateway(0, 0))
	ctx := context.Background()

	req := createReq()
	req.Method = MethodCreditCard
	o, err := h.svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = h.svc.Pay(ctx, o.ID, PaymentDetails{CardNumber: "4242"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = h.svc.Pay(ctx, o.ID, PaymentDetails{
		CardNumber: "4242424242424242", CardExpiry: "12/29", CardCVV: "123", CardholderName: "Asha Rao",
	})
	require.NoError(t, err)

	stored, err := h.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "************4242", stored.Payment.CardNumber)
	assert.Empty(t, stored.Payment.CardCVV)
}

func TestService_PayDeclined(t *testing.T) {
	h := newHarness(t, NewSimulatedGateway(0, 1))
	ctx := context.Background()

	o, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)

	failed, err := h.svc.Pay(ctx, o.ID, PaymentDetails{})
	require.ErrorIs(t, err, ErrPaymentFailed)
	assert.Equal(t, StatusPaymentFailed, failed.Status)
	assert.Equal(t, PaymentFailed, failed.PaymentStatus)
	assert.Contains(t, failed.Error, "declined")
	assert.Empty(t, h.queue.jobs)

	entry := h.hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
}

func TestService_PayEnqueueFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.queue.err = errors.New("stream unavailable")
	ctx := context.Background()

	o, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)

	paid, err := h.svc.Pay(ctx, o.ID, PaymentDetails{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paid but not queued")
	assert.Equal(t, StatusPaid, paid.Status)
}

func TestService_CancelAndList(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	first, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)
	second, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	list, err := h.svc.List(ctx, "vendor-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, StatusCancelled, list[1].Status)

	_, err = h.svc.Status(ctx, "DOM_MISSING")
	assert.ErrorIs(t, err, ErrOrderNotFound)

	r, err := h.svc.Status(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", r.ETA)
}

type fakeVerifier struct {
	status verify.Status
}

func (f fakeVerifier) Registered(_ context.Context, domain string) verify.Evidence {
	return verify.Evidence{Domain: domain, Status: f.status, Method: verify.MethodRDAP}
}

func paidOrder(t *testing.T, h *harness) *Order {
	t.Helper()
	ctx := context.Background()
	o, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)
	o, err = h.svc.Pay(ctx, o.ID, PaymentDetails{})
	require.NoError(t, err)
	return o
}

func TestWorker_CompletesPipeline(t *testing.T) {
	h := newHarness(t, nil)
	o := paidOrder(t, h)

	w := NewWorker(WorkerOptions{
		Store:    h.store,
		Queue:    h.queue,
		Verifier: fakeVerifier{status: verify.StatusRegistered},
		Logger:   logrus.New(),
	})
	require.NoError(t, w.Run(context.Background()))

	done, err := h.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, "verified", done.Step)
	assert.Regexp(t, `^REG_[0-9A-F]{12}$`, done.RegistrationID)
	assert.True(t, done.Nameservers)
	assert.True(t, done.SSLEnabled)

	r := NewReport(done)
	for _, s := range r.Steps {
		assert.Equal(t, "completed", s.Status, s.Step)
	}
}

func TestWorker_OptionalStepsDoNotFail(t *testing.T) {
	h := newHarness(t, nil)
	o := paidOrder(t, h)

	w := NewWorker(WorkerOptions{
		Store: h.store,
		Queue: h.queue,
		Provisioner: &SimulatedProvisioner{Fail: map[string]error{
			"nameservers": errors.New("registrar api down"),
			"ssl":         errors.New("acme timeout"),
		}},
	})
	require.NoError(t, w.Run(context.Background()))

	done, err := h.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.False(t, done.Nameservers)
	assert.False(t, done.SSLEnabled)
}

func TestWorker_RegisterFailureFailsOrder(t *testing.T) {
	h := newHarness(t, nil)
	o := paidOrder(t, h)

	w := NewWorker(WorkerOptions{
		Store:       h.store,
		Queue:       h.queue,
		Provisioner: &SimulatedProvisioner{Fail: map[string]error{"register": errors.New("name taken")}},
	})
	require.NoError(t, w.Run(context.Background()))

	failed, err := h.store.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "register: name taken", failed.Error)
	assert.Equal(t, progressRunning, failed.Progress)
	assert.Equal(t, "Failed", NewReport(failed).ETA)
}

func TestWorker_StrictVerification(t *testing.T) {
	for _, strict := range []bool{false, true} {
		h := newHarness(t, nil)
		o := paidOrder(t, h)

		w := NewWorker(WorkerOptions{
			Store:        h.store,
			Queue:        h.queue,
			Verifier:     fakeVerifier{status: verify.StatusUnregistered},
			StrictVerify: strict,
		})
		require.NoError(t, w.Run(context.Background()))

		got, err := h.store.Get(context.Background(), o.ID)
		require.NoError(t, err)
		want := StatusCompleted
		if strict {
			want = StatusFailed
		}
		if got.Status != want {
			t.Fatalf("strict=%v: status=%q, want %q", strict, got.Status, want)
		}
	}
}

func TestWorker_SkipsFinishedOrders(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	o, err := h.svc.Create(ctx, createReq())
	require.NoError(t, err)

	w := NewWorker(WorkerOptions{Store: h.store, Queue: h.queue})
	require.NoError(t, w.Handle(ctx, Job{OrderID: o.ID}))

	got, err := h.store.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	assert.ErrorIs(t, w.Handle(ctx, Job{OrderID: "DOM_MISSING"}), ErrOrderNotFound)
}
