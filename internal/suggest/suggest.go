// Package suggest turns a business name into candidate domain names.
package suggest

import (
	"context"
	"sort"
	"strings"

	"github.com/benithors/dotpricecli/internal/domain"
	"github.com/benithors/dotpricecli/internal/pricing"
)

type TLD struct {
	Ext     string `json:"ext"`
	Popular bool   `json:"popular"`
}

func DefaultTLDs() []TLD {
	return []TLD{
		{Ext: "com", Popular: true},
		{Ext: "net"},
		{Ext: "shop", Popular: true},
		{Ext: "store"},
		{Ext: "co", Popular: true},
	}
}

// indiaTLDs lists the Indian market catalogue in priority order, with the
// national TLDs right after .com.
func indiaTLDs() []TLD {
	return []TLD{
		{Ext: "com", Popular: true},
		{Ext: "in", Popular: true},
		{Ext: "co.in", Popular: true},
		{Ext: "net.in"},
		{Ext: "org.in"},
		{Ext: "shop", Popular: true},
		{Ext: "store"},
		{Ext: "co", Popular: true},
		{Ext: "online"},
		{Ext: "site"},
	}
}

// TLDsFor returns the default TLDs for a location key.
func TLDsFor(location string) []TLD {
	if strings.EqualFold(strings.TrimSpace(location), "India") {
		return indiaTLDs()
	}
	return DefaultTLDs()
}

type Options struct {
	TLDs []TLD
	// Location picks the default TLDs when TLDs is empty.
	Location       string
	MaxSuggestions int
}

type Candidate struct {
	Domain  string  `json:"domain"`
	Label   string  `json:"label"`
	TLD     string  `json:"tld"`
	Popular bool    `json:"popular_tld"`
	Score   float64 `json:"score"`
}

type Generator struct {
	opts Options
}

func New(opts Options) *Generator {
	if len(opts.TLDs) == 0 {
		opts.TLDs = TLDsFor(opts.Location)
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 12
	}
	return &Generator{opts: opts}
}

// Generate returns up to MaxSuggestions candidates, best first.
func (g *Generator) Generate(businessName string) []Candidate {
	base := cleanName(businessName)
	if base == "" {
		return nil
	}

	var out []Candidate
	for _, label := range variations(base) {
		for _, tld := range g.opts.TLDs {
			ext := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tld.Ext), "."))
			if ext == "" {
				continue
			}
			out = append(out, Candidate{
				Domain:  domain.Join(label, ext),
				Label:   label,
				TLD:     ext,
				Popular: tld.Popular,
				Score:   float64(score(label, ext, tld.Popular, base)) / 10,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > g.opts.MaxSuggestions {
		out = out[:g.opts.MaxSuggestions]
	}
	return out
}

var businessSuffixes = map[string]bool{
	"llc": true, "inc": true, "corp": true, "ltd": true, "co": true,
	"company": true, "business": true, "shop": true, "store": true,
}

// cleanName lower-cases the name, keeps ASCII letters, digits and spaces,
// drops legal/business suffix words and joins what is left.
func cleanName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune(' ')
		}
	}
	words := strings.Fields(b.String())

	kept := words[:0:0]
	for _, w := range words {
		if !businessSuffixes[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = words
	}
	label := strings.Join(kept, "")
	if len(label) > 63 {
		label = label[:63]
	}
	return label
}

var (
	prefixes = []string{"get", "buy", "shop", "my"}
	suffixes = []string{"shop", "store", "online", "hub"}
)

const maxVariations = 6

func variations(base string) []string {
	out := []string{base}
	if len(base) <= 10 {
		for _, p := range prefixes {
			out = append(out, p+base)
		}
	}
	if len(base) <= 12 {
		for _, s := range suffixes {
			out = append(out, base+s)
		}
	}
	if len(out) > maxVariations {
		out = out[:maxVariations]
	}
	return out
}

var commerceTerms = []string{"shop", "store", "buy", "get"}

// score is in tenths, capped at 10.
func score(label, ext string, popular bool, base string) int {
	s := 0
	if popular {
		s += 3
	}
	if ext == "com" {
		s += 4
	}
	switch n := len(label); {
	case n <= 8:
		s += 3
	case n <= 12:
		s += 2
	}
	if label == base {
		s += 4
	}
	for _, t := range commerceTerms {
		if strings.Contains(label, t) {
			s++
			break
		}
	}
	return min(s, 10)
}

// Suggestion is a candidate with its live price.
type Suggestion struct {
	Candidate
	Quote pricing.Quote `json:"quote"`
}

type Pricer interface {
	BulkCheckDomains(ctx context.Context, domains []string, location string) []pricing.Quote
}

// Price looks up every candidate and keeps the available ones, preserving
// candidate order.
func Price(ctx context.Context, p Pricer, cands []Candidate, location string) []Suggestion {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.Domain
	}
	byDomain := map[string]pricing.Quote{}
	for _, q := range p.BulkCheckDomains(ctx, names, location) {
		byDomain[q.Domain] = q
	}

	var out []Suggestion
	for _, c := range cands {
		q, ok := byDomain[c.Domain]
		if !ok || !q.Available {
			continue
		}
		out = append(out, Suggestion{Candidate: c, Quote: q})
	}
	return out
}
