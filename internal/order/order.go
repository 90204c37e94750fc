// Package order implements the domain purchase workflow: an order is
// created against a live quote, paid through a gateway, and then handed to
// a worker over a durable queue which registers and provisions the domain.
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidState      = errors.New("order is not in a valid state for this operation")
	ErrDomainUnavailable = errors.New("domain is not available for registration")
	ErrPaymentFailed     = errors.New("payment failed")
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusPaymentProcessing Status = "payment_processing"
	StatusPaymentFailed     Status = "payment_failed"
	StatusPaid              Status = "paid"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
)

// Final reports whether no further transition is possible.
func (s Status) Final() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCreditCard   PaymentMethod = "credit_card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodStripe       PaymentMethod = "stripe"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodCrypto       PaymentMethod = "crypto"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case MethodCreditCard, MethodPayPal, MethodStripe, MethodBankTransfer, MethodCrypto:
		return m, nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// Contact is the registrant of the domain.
type Contact struct {
	FirstName  string `json:"first_name" mapstructure:"first_name"`
	LastName   string `json:"last_name" mapstructure:"last_name"`
	Email      string `json:"email" mapstructure:"email"`
	Phone      string `json:"phone" mapstructure:"phone"`
	Company    string `json:"company,omitempty" mapstructure:"company"`
	Address1   string `json:"address_line1" mapstructure:"address_line1"`
	Address2   string `json:"address_line2,omitempty" mapstructure:"address_line2"`
	City       string `json:"city" mapstructure:"city"`
	State      string `json:"state,omitempty" mapstructure:"state"`
	PostalCode string `json:"postal_code" mapstructure:"postal_code"`
	Country    string `json:"country" mapstructure:"country"`
}

// Payment carries the method and, while a charge is in flight, the
// instrument details. Card data is masked before the order is stored.
type Payment struct {
	Method   PaymentMethod   `json:"method"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	CardNumber     string `json:"card_number,omitempty"`
	CardExpiry     string `json:"card_expiry,omitempty"`
	CardCVV        string `json:"-"`
	CardholderName string `json:"cardholder_name,omitempty"`
	PayPalEmail    string `json:"paypal_email,omitempty"`
	BankAccount    string `json:"bank_account,omitempty"`
}

func (p Payment) masked() Payment {
	p.CardCVV = ""
	if n := strings.ReplaceAll(p.CardNumber, " ", ""); len(n) > 4 {
		p.CardNumber = strings.Repeat("*", len(n)-4) + n[len(n)-4:]
	}
	if n := len(p.BankAccount); n > 4 {
		p.BankAccount = strings.Repeat("*", n-4) + p.BankAccount[n-4:]
	}
	return p
}

type Order struct {
	ID       string `json:"id"`
	VendorID string `json:"vendor_id"`
	Domain   string `json:"domain"`
	Location string `json:"location"`

	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	CustomerPrice  decimal.Decimal `json:"customer_price"`
	Currency       string          `json:"currency"`
	MarginAmount   decimal.Decimal `json:"margin_amount"`
	Registrar      string          `json:"registrar"`

	Contact    Contact `json:"contact"`
	Payment    Payment `json:"payment"`
	TemplateID int     `json:"template_id"`
	Years      int     `json:"years"`

	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Progress      int           `json:"progress"`
	Step          string        `json:"step,omitempty"`

	PaymentID      string `json:"payment_id,omitempty"`
	RegistrationID string `json:"registration_id,omitempty"`
	Nameservers    bool   `json:"nameservers_updated,omitempty"`
	SSLEnabled     bool   `json:"ssl_enabled,omitempty"`
	Error          string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewID returns an order identifier of the form DOM_1A2B3C4D.
func NewID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "DOM_" + strings.ToUpper(hex[:8])
}

// advance moves the order to step and progress and stamps it.
func (o *Order) advance(step string, progress int, now time.Time) {
	o.Step = step
	if progress > o.Progress {
		o.Progress = progress
	}
	o.UpdatedAt = now
}

func (o *Order) fail(msg string, now time.Time) {
	o.Status = StatusFailed
	o.Error = msg
	o.UpdatedAt = now
}
