package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benithors/dotpricecli/internal/domain"
	"github.com/benithors/dotpricecli/internal/pricing"
)

func newBulkCmd(a *app) *cobra.Command {
	var (
		availableOnly bool
		sortBy        string
	)

	cmd := &cobra.Command{
		Use:   "bulk [domain...]",
		Short: "Price many domains concurrently (args and/or stdin)",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sortVal := strings.ToLower(strings.TrimSpace(sortBy))
			switch sortVal {
			case "", "input", "price", "domain":
			default:
				return usageErr(cmd, fmt.Errorf("invalid --sort %q (use input|price|domain)", sortBy))
			}

			inputs, err := readDomainsFromArgsAndStdin(args, os.Stdin)
			if err != nil {
				return runtimeErr(cmd, fmt.Errorf("failed to read domains: %w", err))
			}
			if len(inputs) == 0 {
				return &cliError{Code: 2, ShowUsage: true, Cmd: cmd}
			}
			names, invalid := domain.NormalizeAll(inputs)
			for _, in := range inputs {
				if err, ok := invalid[in]; ok {
					a.log.WithError(err).WithField("input", in).Warn("skipping invalid domain")
				}
			}
			if len(names) == 0 {
				return usageErr(cmd, fmt.Errorf("%w: no valid domains given", pricing.ErrInvalidDomain))
			}

			e, err := a.pricingEngine()
			if err != nil {
				return runtimeErr(cmd, err)
			}
			quotes := e.BulkCheckDomains(cmd.Context(), names, a.location())

			if availableOnly {
				kept := quotes[:0]
				for _, q := range quotes {
					if q.Available {
						kept = append(kept, q)
					}
				}
				quotes = kept
			}
			sortQuotes(quotes, sortVal)

			if err := writeQuotes(a.stdout, a.outFormat, quotes, false); err != nil {
				return runtimeErr(cmd, fmt.Errorf("failed to write output: %w", err))
			}
			if len(quotes) == 0 && !availableOnly {
				return &cliError{Code: 1, Err: fmt.Errorf("no domain could be priced"), Cmd: cmd}
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().BoolVar(&availableOnly, "available-only", false, "Only output available domains")
	cmd.Flags().StringVar(&sortBy, "sort", "input", "Sort output: input|price|domain")
	return cmd
}

// sortQuotes orders quotes in place. Price sorting compares USD customer
// prices so mixed locations stay comparable; unavailable quotes go last.
func sortQuotes(quotes []pricing.Quote, by string) {
	switch by {
	case "price":
		sort.SliceStable(quotes, func(i, j int) bool {
			qi, qj := quotes[i], quotes[j]
			if qi.Available != qj.Available {
				return qi.Available
			}
			return qi.CustomerPriceUSD.LessThan(qj.CustomerPriceUSD)
		})
	case "domain":
		sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Domain < quotes[j].Domain })
	}
}
