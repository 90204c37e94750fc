package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benithors/dotpricecli/internal/domain"
	"github.com/benithors/dotpricecli/internal/pricing"
)

func newQuoteCmd(a *app) *cobra.Command {
	var details bool

	cmd := &cobra.Command{
		Use:   "quote <domain...>",
		Short: "Price domains for a customer location",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			names, invalid := domain.NormalizeAll(args)
			if err := firstInvalid(args, invalid); err != nil {
				return usageErr(cmd, err)
			}

			e, err := a.pricingEngine()
			if err != nil {
				return runtimeErr(cmd, err)
			}

			location := a.location()
			quotes := make([]pricing.Quote, 0, len(names))
			var failed error
			for _, name := range names {
				q, err := e.GetDomainPricing(cmd.Context(), name, location, details)
				if err != nil {
					a.log.WithError(err).WithField("domain", name).Error("pricing failed")
					failed = errors.Join(failed, fmt.Errorf("%s: %w", name, err))
					continue
				}
				quotes = append(quotes, q)
			}

			if err := writeQuotes(a.stdout, a.outFormat, quotes, details); err != nil {
				return runtimeErr(cmd, fmt.Errorf("failed to write output: %w", err))
			}
			if failed != nil {
				return runtimeErr(cmd, failed)
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(usageErr)
	cmd.Flags().BoolVar(&details, "details", false, "Query every registrar fresh and show each answer")
	return cmd
}
