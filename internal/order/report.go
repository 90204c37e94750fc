package order

import "fmt"

// Step thresholds on Order.Progress.
const (
	progressRunning    = 30
	progressRegistered = 50
	progressDNS        = 60
	progressSSL        = 70
	progressDeployed   = 90
	progressDone       = 100
)

type StepReport struct {
	Step        string `json:"step"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// Report is the status view of an order.
type Report struct {
	*Order
	ETA   string       `json:"estimated_time_remaining"`
	Steps []StepReport `json:"steps"`
}

func NewReport(o *Order) Report {
	return Report{Order: o, ETA: eta(o), Steps: steps(o)}
}

func eta(o *Order) string {
	switch {
	case o.Status == StatusCompleted:
		return "Completed"
	case o.Status == StatusFailed:
		return "Failed"
	case o.Status == StatusCancelled:
		return "Cancelled"
	case o.Progress < progressRunning:
		return "8-12 minutes"
	case o.Progress < progressDNS:
		return "5-8 minutes"
	case o.Progress < progressDeployed:
		return "2-5 minutes"
	default:
		return "1-2 minutes"
	}
}

func done(ok bool) string {
	if ok {
		return "completed"
	}
	return "pending"
}

func steps(o *Order) []StepReport {
	return []StepReport{
		{"Payment Processing", done(o.PaymentStatus == PaymentCompleted), "Process payment for domain registration"},
		{"Domain Registration", done(o.Progress >= progressRegistered), fmt.Sprintf("Register %s with %s", o.Domain, o.Registrar)},
		{"DNS Configuration", done(o.Progress >= progressDNS), "Configure DNS settings for your domain"},
		{"SSL Certificate", done(o.SSLEnabled), "Issue an SSL certificate for your domain"},
		{"Template Deployment", done(o.Progress >= progressDeployed), fmt.Sprintf("Deploy template %d to your domain", o.TemplateID)},
		{"Final Verification", done(o.Status == StatusCompleted), "Verify your domain is registered and live"},
	}
}
