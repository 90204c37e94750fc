// Package verify confirms that a domain is registered after the order
// pipeline has registered it, using RDAP with a WHOIS fallback.
package verify

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/benithors/dotpricecli/internal/logging"
)

type Status string

const (
	StatusRegistered   Status = "registered"
	StatusUnregistered Status = "unregistered"
	StatusUnknown      Status = "unknown"
)

type Method string

const (
	MethodRDAP  Method = "rdap"
	MethodWHOIS Method = "whois"
	MethodNone  Method = "none"
)

// Evidence is the outcome of one lookup.
type Evidence struct {
	Domain     string        `json:"domain"`
	Status     Status        `json:"status"`
	Method     Method        `json:"method"`
	Confidence string        `json:"confidence"`
	Reason     string        `json:"reason,omitempty"`
	Source     string        `json:"source,omitempty"` // RDAP URL or WHOIS server
	HTTPStatus int           `json:"http_status,omitempty"`
	Pattern    string        `json:"pattern,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

func unknown(reason string, err error) Evidence {
	return Evidence{Status: StatusUnknown, Confidence: "low", Reason: reason, Err: err}
}

// Options configures a Verifier. A nil RDAP or WHOIS client skips that method.
type Options struct {
	RDAP    *RDAPClient
	WHOIS   *WHOISClient
	NoWHOIS bool
	Logger  logrus.FieldLogger
}

type Verifier struct {
	opts Options
	log  *logrus.Entry
}

func New(opts Options) *Verifier {
	return &Verifier{opts: opts, log: logging.Component(opts.Logger, "verify")}
}

// Registered asks RDAP first and falls back to WHOIS when RDAP is
// inconclusive. It never returns an error; failures come back as
// StatusUnknown with Err set.
func (v *Verifier) Registered(ctx context.Context, domain string) Evidence {
	start := time.Now()
	ev := unknown("no lookup method", nil)
	ev.Method = MethodNone

	if v.opts.RDAP != nil {
		ev = v.opts.RDAP.Lookup(ctx, domain)
		ev.Method = MethodRDAP
		if ev.Status == StatusUnknown {
			v.log.WithFields(logrus.Fields{"domain": domain, "reason": ev.Reason}).
				WithError(ev.Err).Debug("rdap inconclusive")
		}
	}

	if ev.Status == StatusUnknown && !v.opts.NoWHOIS && v.opts.WHOIS != nil {
		wev := v.opts.WHOIS.Lookup(ctx, domain)
		wev.Method = MethodWHOIS
		if wev.Status != StatusUnknown || ev.Method == MethodNone {
			ev = wev
		} else {
			ev.Reason = "rdap: " + ev.Reason + "; whois: " + wev.Reason
			if wev.Err != nil {
				ev.Err = wev.Err
			}
		}
	}

	ev.Domain = domain
	ev.Duration = time.Since(start)
	v.log.WithFields(logrus.Fields{
		"domain": domain,
		"status": ev.Status,
		"method": ev.Method,
	}).Debug("verification finished")
	return ev
}
