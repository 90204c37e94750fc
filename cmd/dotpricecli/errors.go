package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/benithors/dotpricecli/internal/order"
	"github.com/benithors/dotpricecli/internal/pricing"
)

type cliError struct {
	Code      int
	Err       error
	ShowUsage bool
	Cmd       *cobra.Command
}

func (e *cliError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *cliError) Unwrap() error { return e.Err }

var errExit0 = &cliError{Code: 0}

func usageErr(cmd *cobra.Command, err error) error {
	return &cliError{Code: 2, Err: err, ShowUsage: true, Cmd: cmd}
}

func runtimeErr(cmd *cobra.Command, err error) error {
	return &cliError{Code: exitCode(err), Err: err, Cmd: cmd}
}

// exitCode maps errors to the process exit status: 2 for input the user
// can fix on the command line, 1 for everything else.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pricing.ErrInvalidDomain),
		errors.Is(err, order.ErrValidation),
		strings.HasPrefix(err.Error(), "unknown command"):
		return 2
	default:
		return 1
	}
}

// usageArgs turns cobra's argument validation errors into usage errors.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return usageErr(cmd, err)
		}
		return nil
	}
}
