package main

import (
	"github.com/spf13/cobra"
)

func newLocationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locations",
		Short: "List customer locations and their markup",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := a.cfg.Rules()
			if err != nil {
				return runtimeErr(cmd, err)
			}
			return writeOrFail(cmd, writeLocations(a.stdout, a.outFormat, rules))
		},
	}
	cmd.SetFlagErrorFunc(usageErr)
	return cmd
}
