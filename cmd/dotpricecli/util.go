package main

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/benithors/dotpricecli/internal/domain"
	"github.com/benithors/dotpricecli/internal/pricing"
)

func readDomainsFromArgsAndStdin(args []string, stdin *os.File) ([]string, error) {
	var out []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}

	if stdin == nil || term.IsTerminal(int(stdin.Fd())) {
		// Nothing piped in.
		return out, nil
	}
	lines, err := domain.ReadLines(stdin)
	if err != nil {
		return nil, err
	}
	return append(out, lines...), nil
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// firstInvalid reports the first input, in argument order, that failed
// normalization.
func firstInvalid(inputs []string, invalid map[string]error) error {
	for _, in := range inputs {
		if err, ok := invalid[in]; ok {
			return fmt.Errorf("%w: %q: %v", pricing.ErrInvalidDomain, in, err)
		}
	}
	return nil
}
