package order

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/benithors/dotpricecli/internal/logging"
	"github.com/benithors/dotpricecli/internal/verify"
)

// DefaultNameservers point a registered domain at the storefront hosting.
var DefaultNameservers = []string{"ns1.vision.com", "ns2.vision.com"}

// Verifier confirms a domain is registered.
type Verifier interface {
	Registered(ctx context.Context, domain string) verify.Evidence
}

type WorkerOptions struct {
	Store       Store
	Queue       Queue
	Provisioner Provisioner
	// Verifier is optional; without one the verify step only advances.
	Verifier Verifier
	// StrictVerify fails orders whose domain verifies as unregistered.
	StrictVerify bool
	Nameservers  []string
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// Worker runs the registration pipeline for paid orders taken off the queue.
type Worker struct {
	opts WorkerOptions
	log  *logrus.Entry
}

func NewWorker(opts WorkerOptions) *Worker {
	if opts.Provisioner == nil {
		opts.Provisioner = &SimulatedProvisioner{}
	}
	if len(opts.Nameservers) == 0 {
		opts.Nameservers = DefaultNameservers
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Worker{opts: opts, log: logging.Component(opts.Logger, "worker")}
}

// Run consumes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")
	defer w.log.Info("worker stopped")
	return w.opts.Queue.Consume(ctx, w.Handle)
}

// Handle runs the pipeline for one job. Pipeline failures are recorded on
// the order and are not returned; only persistence errors are.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	o, err := w.opts.Store.Get(ctx, job.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", job.OrderID, err)
	}
	log := w.log.WithFields(logrus.Fields{"order_id": o.ID, "domain": o.Domain})

	switch o.Status {
	case StatusPaid, StatusProcessing:
	default:
		log.WithField("status", o.Status).Info("skipping job for order not awaiting registration")
		return nil
	}

	o.Status = StatusProcessing
	o.Error = ""
	o.advance("registering", progressRunning, w.opts.Now())
	if err := w.save(ctx, o); err != nil {
		return err
	}

	for _, st := range w.pipeline() {
		serr := st.run(ctx, o)
		if serr != nil && !st.optional {
			log.WithError(serr).WithField("step", st.name).Error("registration failed")
			o.fail(fmt.Sprintf("%s: %v", st.name, serr), w.opts.Now())
			return w.save(ctx, o)
		}
		if serr != nil {
			log.WithError(serr).WithField("step", st.name).Warn("step failed, continuing")
		}
		o.advance(st.done, st.progress, w.opts.Now())
		if err := w.save(ctx, o); err != nil {
			return err
		}
	}

	o.Status = StatusCompleted
	o.UpdatedAt = w.opts.Now()
	if err := w.save(ctx, o); err != nil {
		return err
	}
	log.WithField("registration_id", o.RegistrationID).Info("domain registration completed")
	return nil
}

type step struct {
	name     string
	done     string
	progress int
	optional bool
	run      func(ctx context.Context, o *Order) error
}

func (w *Worker) pipeline() []step {
	p := w.opts.Provisioner
	return []step{
		{name: "register", done: "registered", progress: progressRegistered, run: func(ctx context.Context, o *Order) error {
			if o.RegistrationID != "" {
				return nil // already registered by an earlier delivery
			}
			id, err := p.Register(ctx, o)
			if err != nil {
				return err
			}
			o.RegistrationID = id
			return nil
		}},
		{name: "nameservers", done: "nameservers_configured", progress: progressDNS, optional: true, run: func(ctx context.Context, o *Order) error {
			if err := p.SetNameservers(ctx, o, w.opts.Nameservers); err != nil {
				return err
			}
			o.Nameservers = true
			return nil
		}},
		{name: "ssl", done: "ssl_configured", progress: progressSSL, optional: true, run: func(ctx context.Context, o *Order) error {
			if err := p.IssueSSL(ctx, o); err != nil {
				return err
			}
			o.SSLEnabled = true
			return nil
		}},
		{name: "deploy", done: "template_deployed", progress: progressDeployed, run: func(ctx context.Context, o *Order) error {
			return p.DeployTemplate(ctx, o)
		}},
		{name: "verify", done: "verified", progress: progressDone, run: w.verify},
	}
}

func (w *Worker) verify(ctx context.Context, o *Order) error {
	if w.opts.Verifier == nil {
		return nil
	}
	ev := w.opts.Verifier.Registered(ctx, o.Domain)
	log := w.log.WithFields(logrus.Fields{
		"order_id": o.ID,
		"domain":   o.Domain,
		"status":   ev.Status,
		"method":   ev.Method,
	})
	switch ev.Status {
	case verify.StatusRegistered:
		log.Debug("domain verified")
	case verify.StatusUnregistered:
		if w.opts.StrictVerify {
			return fmt.Errorf("domain %s is not registered (%s)", o.Domain, ev.Reason)
		}
		log.Warn("domain not yet visible as registered")
	default:
		log.WithError(ev.Err).Warn("verification inconclusive")
	}
	return nil
}

func (w *Worker) save(ctx context.Context, o *Order) error {
	if err := w.opts.Store.Save(ctx, o); err != nil {
		return fmt.Errorf("persist order %s: %w", o.ID, err)
	}
	return nil
}
