package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/benithors/dotpricecli/internal/domain"
	"github.com/benithors/dotpricecli/internal/logging"
	"github.com/benithors/dotpricecli/internal/pricing"
)

// Pricer is the part of the pricing engine orders depend on.
type Pricer interface {
	GetDomainPricing(ctx context.Context, domain, location string, includeDetails bool) (pricing.Quote, error)
}

type ServiceOptions struct {
	Store   Store
	Queue   Queue
	Pricer  Pricer
	Gateway Gateway
	Logger  logrus.FieldLogger
	Now     func() time.Time
}

type Service struct {
	opts ServiceOptions
	log  *logrus.Entry
}

func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Store == nil || opts.Queue == nil || opts.Pricer == nil {
		return nil, errors.New("order service needs a store, a queue and a pricer")
	}
	if opts.Gateway == nil {
		opts.Gateway = NewSimulatedGateway(0, 0)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{opts: opts, log: logging.Component(opts.Logger, "orders")}, nil
}

type CreateRequest struct {
	VendorID   string
	Domain     string
	Location   string
	Contact    Contact
	Method     PaymentMethod
	TemplateID int
	Years      int
}

// Create prices the domain against a fresh quote and stores a pending order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	name, err := domain.Normalize(req.Domain)
	if err != nil {
		return nil, fmt.Errorf("invalid domain name: %w", err)
	}
	if err := req.Contact.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParsePaymentMethod(string(req.Method)); err != nil {
		return nil, &ValidationError{Field: "payment", Problems: []string{err.Error()}}
	}

	q, err := s.opts.Pricer.GetDomainPricing(ctx, name, req.Location, true)
	if err != nil {
		return nil, fmt.Errorf("price %s: %w", name, err)
	}
	if !q.Available {
		return nil, fmt.Errorf("%w: %s", ErrDomainUnavailable, name)
	}

	years := req.Years
	if years <= 0 {
		years = 1
	}
	if req.Contact.Country == "" {
		req.Contact.Country = "US"
	}
	now := s.opts.Now()
	o := &Order{
		ID:             NewID(),
		VendorID:       req.VendorID,
		Domain:         name,
		Location:       q.Location,
		WholesalePrice: q.WholesalePrice,
		CustomerPrice:  q.CustomerPrice,
		Currency:       q.Currency,
		MarginAmount:   q.MarginAmount,
		Registrar:      q.WholesaleRegistrar,
		Contact:        req.Contact,
		Payment:        Payment{Method: req.Method, Amount: q.CustomerPrice, Currency: q.Currency},
		TemplateID:     req.TemplateID,
		Years:          years,
		Status:         StatusPending,
		PaymentStatus:  PaymentPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.opts.Store.Save(ctx, o); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"order_id":  o.ID,
		"domain":    o.Domain,
		"registrar": o.Registrar,
		"price":     o.CustomerPrice.StringFixed(2),
		"currency":  o.Currency,
	}).Info("order created")
	return o, nil
}

// PaymentDetails are the instrument fields supplied at payment time.
type PaymentDetails struct {
	CardNumber     string
	CardExpiry     string
	CardCVV        string
	CardholderName string
	PayPalEmail    string
	BankAccount    string
}

// Pay charges a pending order. On success the order is paid and a
// registration job is queued; on decline it ends in payment_failed and the
// returned error wraps ErrPaymentFailed.
func (s *Service) Pay(ctx context.Context, id string, d PaymentDetails) (*Order, error) {
	o, err := s.opts.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return o, fmt.Errorf("%w: order %s is %s, not pending", ErrInvalidState, id, o.Status)
	}

	p := o.Payment
	p.CardNumber, p.CardExpiry, p.CardCVV = d.CardNumber, d.CardExpiry, d.CardCVV
	p.CardholderName, p.PayPalEmail, p.BankAccount = d.CardholderName, d.PayPalEmail, d.BankAccount
	if err := p.Validate(); err != nil {
		return o, err
	}
	o.Payment = p

	log := s.log.WithField("order_id", o.ID)
	o.Status = StatusPaymentProcessing
	o.PaymentStatus = PaymentProcessing
	o.advance("payment_processing", 10, s.opts.Now())
	if err := s.claim(ctx, o, StatusPending); err != nil {
		return nil, err
	}

	charge, cerr := s.opts.Gateway.Charge(ctx, o)
	o.Payment = o.Payment.masked()
	if cerr != nil {
		o.Status = StatusPaymentFailed
		o.PaymentStatus = PaymentFailed
		o.Error = cerr.Error()
		o.advance("payment_failed", 0, s.opts.Now())
		if err := s.save(ctx, o); err != nil {
			return nil, err
		}
		log.WithError(cerr).Warn("payment failed")
		if !errors.Is(cerr, ErrPaymentFailed) {
			cerr = fmt.Errorf("%w: %w", ErrPaymentFailed, cerr)
		}
		return o, cerr
	}

	o.Status = StatusPaid
	o.PaymentStatus = PaymentCompleted
	o.PaymentID = charge.PaymentID
	o.advance("payment_completed", 25, s.opts.Now())
	if err := s.save(ctx, o); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"payment_id": charge.PaymentID, "gateway": charge.Gateway}).Info("payment completed")

	if err := s.opts.Queue.Enqueue(ctx, Job{OrderID: o.ID, EnqueuedAt: s.opts.Now()}); err != nil {
		return o, fmt.Errorf("order %s paid but not queued: %w", o.ID, err)
	}
	return o, nil
}

func (s *Service) Cancel(ctx context.Context, id string) (*Order, error) {
	o, err := s.opts.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPending {
		return o, fmt.Errorf("%w: order %s is %s, not pending", ErrInvalidState, id, o.Status)
	}
	o.Status = StatusCancelled
	o.advance("cancelled", 0, s.opts.Now())
	if err := s.claim(ctx, o, StatusPending); err != nil {
		return nil, err
	}
	s.log.WithField("order_id", o.ID).Info("order cancelled")
	return o, nil
}

func (s *Service) Status(ctx context.Context, id string) (Report, error) {
	o, err := s.opts.Store.Get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	return NewReport(o), nil
}

// List returns a vendor's orders, newest first.
func (s *Service) List(ctx context.Context, vendorID string) ([]*Order, error) {
	return s.opts.Store.ListByVendor(ctx, vendorID)
}

// claim saves o only if the stored order is still in status from.
func (s *Service) claim(ctx context.Context, o *Order, from Status) error {
	err := s.opts.Store.SaveIf(ctx, o, from)
	switch {
	case err == nil, errors.Is(err, ErrInvalidState), errors.Is(err, ErrOrderNotFound):
		return err
	}
	return fmt.Errorf("persist order %s: %w", o.ID, err)
}

func (s *Service) save(ctx context.Context, o *Order) error {
	if err := s.opts.Store.Save(ctx, o); err != nil {
		return fmt.Errorf("persist order %s: %w", o.ID, err)
	}
	return nil
}
