package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Charge is the result of a successful payment.
type Charge struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Gateway       string `json:"gateway"`
}

// Gateway charges an order's payment. A declined payment is an error.
type Gateway interface {
	Charge(ctx context.Context, o *Order) (Charge, error)
}

// Provisioner performs the registration pipeline against the outside world.
type Provisioner interface {
	Register(ctx context.Context, o *Order) (registrationID string, err error)
	SetNameservers(ctx context.Context, o *Order, nameservers []string) error
	IssueSSL(ctx context.Context, o *Order) error
	DeployTemplate(ctx context.Context, o *Order) error
}

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// SimulatedGateway approves payments after Delay, declining a DeclineRate
// fraction of stripe charges.
type SimulatedGateway struct {
	Delay       time.Duration
	DeclineRate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulatedGateway(delay time.Duration, declineRate float64) *SimulatedGateway {
	return &SimulatedGateway{
		Delay:       delay,
		DeclineRate: declineRate,
		rnd:         rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

func (g *SimulatedGateway) declined() bool {
	if g.DeclineRate <= 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rnd.Float64() < g.DeclineRate
}

func (g *SimulatedGateway) Charge(ctx context.Context, o *Order) (Charge, error) {
	if err := sleepCtx(ctx, g.Delay); err != nil {
		return Charge{}, err
	}
	switch o.Payment.Method {
	case MethodStripe:
		if g.declined() {
			return Charge{}, fmt.Errorf("%w: your card was declined, please try a different payment method", ErrPaymentFailed)
		}
		return Charge{PaymentID: "pi_" + hexID(16), TransactionID: "ch_" + hexID(16), Gateway: "stripe"}, nil
	case MethodPayPal:
		return Charge{
			PaymentID:     "PAYID-" + strings.ToUpper(hexID(16)),
			TransactionID: "TXN-" + strings.ToUpper(hexID(12)),
			Gateway:       "paypal",
		}, nil
	default:
		return Charge{PaymentID: "pay_" + hexID(12), TransactionID: "txn_" + hexID(16), Gateway: string(o.Payment.Method)}, nil
	}
}

// SimulatedProvisioner succeeds after Delay per step unless a step is
// listed in Fail.
type SimulatedProvisioner struct {
	Delay time.Duration
	// Fail maps a step name (register, nameservers, ssl, deploy) to the
	// error that step returns.
	Fail map[string]error
}

func (p *SimulatedProvisioner) step(ctx context.Context, name string) error {
	if err := sleepCtx(ctx, p.Delay); err != nil {
		return err
	}
	if err, ok := p.Fail[name]; ok {
		return err
	}
	return nil
}

func (p *SimulatedProvisioner) Register(ctx context.Context, o *Order) (string, error) {
	if err := p.step(ctx, "register"); err != nil {
		return "", err
	}
	return "REG_" + strings.ToUpper(hexID(12)), nil
}

func (p *SimulatedProvisioner) SetNameservers(ctx context.Context, o *Order, nameservers []string) error {
	return p.step(ctx, "nameservers")
}

func (p *SimulatedProvisioner) IssueSSL(ctx context.Context, o *Order) error {
	return p.step(ctx, "ssl")
}

func (p *SimulatedProvisioner) DeployTemplate(ctx context.Context, o *Order) error {
	return p.step(ctx, "deploy")
}
