// Package domain cleans user-supplied domain names before they reach the
// registrars.
package domain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

var ErrEmpty = errors.New("empty domain")

// Normalize accepts bare names, URLs and host:port forms and returns the
// lower-case ASCII (punycode) domain. Single-label names are rejected.
func Normalize(input string) (string, error) {
	s := hostOf(strings.TrimSpace(input))
	s = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(s), "."))
	if s == "" {
		return "", ErrEmpty
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("idna: %w", err)
	}
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("domain must contain a dot: %q", input)
	}
	if !validASCII(ascii) {
		return "", fmt.Errorf("invalid domain: %q", input)
	}
	return ascii, nil
}

// hostOf strips scheme, path, query and port.
func hostOf(s string) string {
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Host != "" {
			s = u.Host
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	if i := strings.LastIndexByte(s, ':'); i > 0 && i < len(s)-1 && digits(s[i+1:]) {
		return s[:i]
	}
	return s
}

// Split returns the first label and the remaining suffix:
// "shop.example.co.uk" gives ("shop", "example.co.uk").
func Split(domain string) (label, tld string) {
	label, tld, _ = strings.Cut(domain, ".")
	return label, tld
}

// Join builds label.tld, trimming stray dots from the tld.
func Join(label, tld string) string {
	return label + "." + strings.TrimPrefix(strings.TrimSpace(tld), ".")
}

// NormalizeAll normalizes inputs, dropping duplicates. Bad inputs are
// returned separately with their error.
func NormalizeAll(inputs []string) (valid []string, invalid map[string]error) {
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		d, err := Normalize(in)
		if err != nil {
			if invalid == nil {
				invalid = map[string]error{}
			}
			invalid[in] = err
			continue
		}
		if seen[d] {
			continue
		}
		seen[d] = true
		valid = append(valid, d)
	}
	return valid, invalid
}

// ReadLines returns the non-blank, trimmed lines of r.
func ReadLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func validASCII(s string) bool {
	if len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if len(l) == 0 || len(l) > 63 || l[0] == '-' || l[len(l)-1] == '-' {
			return false
		}
		for i := 0; i < len(l); i++ {
			c := l[i]
			if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
				return false
			}
		}
	}
	return true
}
