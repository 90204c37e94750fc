package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benithors/dotpricecli/internal/registrar"
)

const DefaultBootstrapURL = "https://data.iana.org/rdap/dns.json"

const bootstrapFile = "rdap-dns.json"

var errInvalidDomain = errors.New("invalid domain")

type RDAPOptions struct {
	BootstrapURL string
	// CacheDir holds the bootstrap file between runs. Empty disables the
	// file cache.
	CacheDir  string
	CacheTTL  time.Duration
	Timeout   time.Duration
	Transport http.RoundTripper
}

// RDAPClient finds the RDAP service of a TLD through the IANA bootstrap
// registry and asks it about the domain.
type RDAPClient struct {
	opts RDAPOptions
	http *http.Client

	mu       sync.Mutex
	services serviceMap
}

func NewRDAPClient(opts RDAPOptions) *RDAPClient {
	if opts.BootstrapURL == "" {
		opts.BootstrapURL = DefaultBootstrapURL
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 7 * 24 * time.Hour
	}
	if opts.Timeout == 0 {
		opts.Timeout = 8 * time.Second
	}
	if opts.CacheDir == "" {
		if d, err := os.UserCacheDir(); err == nil && d != "" {
			opts.CacheDir = filepath.Join(d, "dotpricecli")
		}
	}
	return &RDAPClient{opts: opts, http: registrar.HTTPClient(opts.Transport, opts.Timeout)}
}

// Lookup tries each RDAP base URL of the domain's TLD until one gives a
// definite answer.
func (c *RDAPClient) Lookup(ctx context.Context, domain string) Evidence {
	tld := lastLabel(domain)
	if tld == "" {
		return unknown("invalid domain", errInvalidDomain)
	}
	services, err := c.registry(ctx)
	if err != nil {
		return unknown("rdap bootstrap unavailable", err)
	}
	bases := services.urlsForTLD(tld)
	if len(bases) == 0 {
		return unknown("no rdap service for tld", nil)
	}

	var errs []error
	for _, base := range bases {
		ev := c.query(ctx, base, domain)
		if ev.Status != StatusUnknown {
			return ev
		}
		errs = append(errs, ev.Err)
	}
	return unknown("rdap lookup failed", errors.Join(errs...))
}

// query asks one RDAP server. 200 means registered and 404 means
// unregistered; anything else proves nothing.
func (c *RDAPClient) query(ctx context.Context, base, domain string) Evidence {
	target := strings.TrimRight(base, "/") + "/domain/" + url.PathEscape(domain)
	ev := Evidence{Source: target, Status: StatusUnknown, Confidence: "low"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		ev.Reason, ev.Err = "bad request", err
		return ev
	}
	req.Header.Set("accept", "application/rdap+json, application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		ev.Reason, ev.Err = "network error", err
		return ev
	}
	resp.Body.Close()

	ev.HTTPStatus = resp.StatusCode
	switch resp.StatusCode {
	case http.StatusOK:
		ev.Status, ev.Confidence, ev.Reason = StatusRegistered, "high", "rdap 200"
	case http.StatusNotFound:
		ev.Status, ev.Confidence, ev.Reason = StatusUnregistered, "high", "rdap 404"
	default:
		ev.Reason = fmt.Sprintf("rdap http %d", resp.StatusCode)
		ev.Err = errors.New(ev.Reason)
	}
	return ev
}

// registry loads the bootstrap once per client.
func (c *RDAPClient) registry(ctx context.Context) (serviceMap, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.services != nil {
		return c.services, nil
	}
	path := ""
	if c.opts.CacheDir != "" {
		path = filepath.Join(c.opts.CacheDir, bootstrapFile)
	}
	s, err := loadBootstrap(ctx, c.http, c.opts.BootstrapURL, path, c.opts.CacheTTL)
	if err != nil {
		return nil, err
	}
	c.services = s
	return s, nil
}

// serviceMap maps a lower-case TLD to its RDAP base URLs.
type serviceMap map[string][]string

func (s serviceMap) urlsForTLD(tld string) []string {
	return s[strings.ToLower(tld)]
}

// loadBootstrap reads cachePath when it is younger than ttl, downloads
// srcURL otherwise, and falls back to a stale file when the download fails.
func loadBootstrap(ctx context.Context, httpc *http.Client, srcURL, cachePath string, ttl time.Duration) (serviceMap, error) {
	cached := func(fresh bool) serviceMap {
		if cachePath == "" {
			return nil
		}
		st, err := os.Stat(cachePath)
		if err != nil || st.IsDir() || (fresh && ttl > 0 && time.Since(st.ModTime()) > ttl) {
			return nil
		}
		b, err := os.ReadFile(cachePath)
		if err != nil {
			return nil
		}
		s, err := parseBootstrap(b)
		if err != nil {
			return nil
		}
		return s
	}

	if s := cached(true); s != nil {
		return s, nil
	}
	body, err := registrar.Do(ctx, httpc, "rdap-bootstrap", registrar.Request{URL: srcURL})
	if err != nil {
		if s := cached(false); s != nil {
			return s, nil
		}
		return nil, err
	}
	s, err := parseBootstrap(body)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		saveAtomic(cachePath, body)
	}
	return s, nil
}

// saveAtomic replaces path through a temp file in the same directory.
// The cache is best effort, so failures are dropped.
func saveAtomic(path string, body []byte) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(dir, "rdap-dns-*.json")
	if err != nil {
		return
	}
	_, werr := tmp.Write(body)
	if cerr := tmp.Close(); werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return
	}
	_ = os.Rename(tmp.Name(), path)
}

// parseBootstrap reads the IANA "services" array: each entry pairs a list
// of TLDs with a list of base URLs.
func parseBootstrap(b []byte) (serviceMap, error) {
	var doc struct {
		Services [][][]string `json:"services"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("rdap bootstrap: %w", err)
	}
	s := make(serviceMap, 2048)
	for _, entry := range doc.Services {
		if len(entry) != 2 {
			continue
		}
		var bases []string
		for _, u := range entry[1] {
			u = strings.TrimSpace(u)
			if _, err := url.Parse(u); err != nil || u == "" || slices.Contains(bases, u) {
				continue
			}
			bases = append(bases, u)
		}
		for _, tld := range entry[0] {
			if tld = strings.ToLower(strings.TrimSpace(tld)); tld != "" {
				s[tld] = bases
			}
		}
	}
	return s, nil
}

func lastLabel(domain string) string {
	i := strings.LastIndexByte(domain, '.')
	if i < 0 || i == len(domain)-1 {
		return ""
	}
	return domain[i+1:]
}
