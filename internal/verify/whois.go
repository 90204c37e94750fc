package verify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
)

const ianaWHOIS = "whois.iana.org"

type WHOISOptions struct {
	Timeout time.Duration
	// Port defaults to 43.
	Port string
	// Servers pins WHOIS servers per TLD and skips the IANA referral.
	Servers map[string]string

	MaxConcurrentPerServer int
	MinDelayPerServer      time.Duration
	Retries                int
	Backoff                time.Duration
}

// WHOISClient speaks the port 43 protocol. Each server gets its own pacer
// so bulk verification does not trip registry rate limits.
type WHOISClient struct {
	opts WHOISOptions

	mu      sync.Mutex
	servers map[string]string
	pacers  map[string]*registrar.Pacer
}

func NewWHOISClient(opts WHOISOptions) *WHOISClient {
	if opts.Timeout == 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.Port == "" {
		opts.Port = "43"
	}
	opts.MaxConcurrentPerServer = max(opts.MaxConcurrentPerServer, 1)
	if opts.MinDelayPerServer <= 0 {
		opts.MinDelayPerServer = 250 * time.Millisecond
	}
	switch {
	case opts.Retries == 0:
		opts.Retries = 2
	case opts.Retries < 0:
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 250 * time.Millisecond
	}

	servers := make(map[string]string, len(opts.Servers)+16)
	for tld, s := range opts.Servers {
		servers[strings.ToLower(tld)] = s
	}
	return &WHOISClient{opts: opts, servers: servers, pacers: map[string]*registrar.Pacer{}}
}

func (c *WHOISClient) Lookup(ctx context.Context, domain string) Evidence {
	tld := lastLabel(domain)
	if tld == "" {
		return unknown("invalid domain", errInvalidDomain)
	}
	server, err := c.serverForTLD(ctx, tld)
	if err != nil {
		return unknown("no whois server", err)
	}

	ev := Evidence{Source: server}
	body, err := c.query(ctx, server, domain)
	if err != nil {
		ev.Status, ev.Confidence, ev.Reason, ev.Err = StatusUnknown, "low", "whois query failed", err
		return ev
	}
	ev.Status, ev.Pattern = classify(domain, body)
	switch ev.Status {
	case StatusUnregistered:
		ev.Confidence, ev.Reason = "medium", "whois not-found pattern"
	case StatusRegistered:
		ev.Confidence, ev.Reason = "medium", "whois record found"
	default:
		ev.Confidence, ev.Reason = "low", "whois ambiguous"
	}
	return ev
}

// serverForTLD returns the pinned or previously referred server, asking
// IANA for a referral otherwise.
func (c *WHOISClient) serverForTLD(ctx context.Context, tld string) (string, error) {
	tld = strings.ToLower(strings.TrimSpace(tld))
	if tld == "" {
		return "", errors.New("empty tld")
	}
	c.mu.Lock()
	known := c.servers[tld]
	c.mu.Unlock()
	if known != "" {
		return known, nil
	}

	body, err := c.query(ctx, ianaWHOIS, tld)
	if err != nil {
		return "", err
	}
	server := referral(body)
	if server == "" {
		return "", fmt.Errorf("whois server not found for tld %q", tld)
	}
	c.mu.Lock()
	c.servers[tld] = server
	c.mu.Unlock()
	return server, nil
}

// referral extracts the "whois: host" line of an IANA TLD record.
func referral(body string) string {
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		key, val, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || !strings.EqualFold(key, "whois") {
			continue
		}
		if f := strings.Fields(val); len(f) > 0 {
			return f[0]
		}
	}
	return ""
}

func (c *WHOISClient) pacer(server string) *registrar.Pacer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.pacers[server]; p != nil {
		return p
	}
	p := registrar.NewPacer(c.opts.MaxConcurrentPerServer, c.opts.MinDelayPerServer)
	c.pacers[server] = p
	return p
}

// query retries transient network failures with doubling backoff capped at
// two seconds.
func (c *WHOISClient) query(ctx context.Context, server, q string) (string, error) {
	wait := c.opts.Backoff
	for attempt := 0; ; attempt++ {
		body, err := c.exchange(ctx, server, q)
		if err == nil {
			return body, nil
		}
		if attempt >= c.opts.Retries || !isRetryable(err) {
			return "", err
		}
		if serr := sleepWithContext(ctx, wait); serr != nil {
			return "", serr
		}
		wait = min(wait*2, 2*time.Second)
	}
}

// exchange sends one query line and reads the reply until the server
// closes the connection. Time spent waiting on the pacer is not part of
// the timeout.
func (c *WHOISClient) exchange(ctx context.Context, server, q string) (string, error) {
	release, err := c.pacer(server).Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(server, c.opts.Port))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := fmt.Fprintf(conn, "%s\r\n", q); err != nil {
		return "", err
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, io.LimitReader(conn, 1<<20)); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// notFound lists registry phrasings of "no such domain", most specific
// first. The second field names the match in Evidence.Pattern.
var notFound = [][2]string{
	{"no match for", "no_match_for"},
	{"no data found", "no_data_found"},
	{"no entries found", "no_entries_found"},
	{"domain not found", "domain_not_found"},
	{"no such domain", "no_such_domain"},
	{"status: free", "status_free"},
	{"not found", "not_found"},
}

func classify(domain, body string) (Status, string) {
	lower := strings.ToLower(body)
	for _, p := range notFound {
		if strings.Contains(lower, p[0]) {
			return StatusUnregistered, p[1]
		}
	}

	record := regexp.MustCompile(`(?im)^domain(?: name)?\s*:\s*` + regexp.QuoteMeta(domain) + `\s*$`)
	switch {
	case record.MatchString(body):
		return StatusRegistered, "domain_record"
	case strings.Contains(lower, "domain name:"), strings.Contains(lower, "registrar:"):
		return StatusRegistered, "heuristic_record_fields"
	}
	return StatusUnknown, ""
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isRetryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe")
}
