package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benithors/dotpricecli/internal/suggest"
)

func newSuggestCmd(a *app) *cobra.Command {
	var (
		tldsStr string
		maxOut  int
		noPrice bool
	)

	cmd := &cobra.Command{
		Use:   "suggest <business name...>",
		Short: "Suggest priced, available domains for a business name",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(strings.Join(args, " "))
			if maxOut < 0 {
				return usageErr(cmd, errors.New("--max must not be negative"))
			}

			loc := a.location()
			gen := suggest.New(suggest.Options{
				TLDs:           parseTLDs(tldsStr, loc),
				Location:       loc,
				MaxSuggestions: maxOut,
			})
			cands := gen.Generate(name)
			if len(cands) == 0 {
				return usageErr(cmd, fmt.Errorf("no usable characters in %q", name))
			}

			if noPrice {
				rows := make([]suggest.Suggestion, len(cands))
				for i, c := range cands {
					rows[i] = suggest.Suggestion{Candidate: c}
				}
				return writeOrFail(cmd, writeSuggestions(a.stdout, a.outFormat, rows))
			}

			e, err := a.pricingEngine()
			if err != nil {
				return runtimeErr(cmd, err)
			}
			rows := suggest.Price(cmd.Context(), e, cands, loc)
			a.log.WithField("candidates", len(cands)).WithField("available", len(rows)).Debug("suggestions priced")
			return writeOrFail(cmd, writeSuggestions(a.stdout, a.outFormat, rows))
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().StringVar(&tldsStr, "tlds", "", "Comma-separated TLDs (default com,net,shop,store,co; India adds in,co.in,net.in,org.in)")
	cmd.Flags().IntVar(&maxOut, "max", 12, "Maximum candidates to price")
	cmd.Flags().BoolVar(&noPrice, "no-price", false, "List candidates without pricing them")
	return cmd
}

// parseTLDs keeps the popularity flag of TLDs known for location. Empty
// input means the location's defaults.
func parseTLDs(s, location string) []suggest.TLD {
	exts := splitCommaList(s)
	if len(exts) == 0 {
		return nil
	}
	popular := map[string]bool{}
	for _, t := range append(suggest.DefaultTLDs(), suggest.TLDsFor(location)...) {
		popular[t.Ext] = popular[t.Ext] || t.Popular
	}
	out := make([]suggest.TLD, 0, len(exts))
	for _, e := range exts {
		e = strings.TrimPrefix(e, ".")
		out = append(out, suggest.TLD{Ext: e, Popular: popular[e]})
	}
	return out
}

func writeOrFail(cmd *cobra.Command, err error) error {
	if err != nil {
		return runtimeErr(cmd, fmt.Errorf("failed to write output: %w", err))
	}
	return nil
}
