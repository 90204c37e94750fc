package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/benithors/dotpricecli/internal/order"
	"github.com/benithors/dotpricecli/internal/pricing"
	"github.com/benithors/dotpricecli/internal/suggest"
)

type outputFormat int

const (
	formatTable outputFormat = iota
	formatNDJSON
	formatJSON
	formatPlain
)

func validFormat(s string) bool {
	switch s {
	case "auto", "table", "ndjson", "json", "plain":
		return true
	}
	return false
}

func resolveFormat(flagVal string, stdout *os.File) outputFormat {
	switch strings.ToLower(strings.TrimSpace(flagVal)) {
	case "table":
		return formatTable
	case "ndjson":
		return formatNDJSON
	case "json":
		return formatJSON
	case "plain":
		return formatPlain
	}

	if term.IsTerminal(int(stdout.Fd())) {
		return formatTable
	}
	return formatNDJSON
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// writeJSON handles the two JSON formats for any row type. It reports
// false for table and plain so the caller renders those itself.
func writeJSON[T any](w io.Writer, format outputFormat, rows []T) (bool, error) {
	switch format {
	case formatNDJSON:
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return true, err
			}
		}
		return true, nil
	case formatJSON:
		if rows == nil {
			rows = []T{}
		}
		return true, json.NewEncoder(w).Encode(rows)
	}
	return false, nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeQuotes(w io.Writer, format outputFormat, quotes []pricing.Quote, details bool) error {
	if done, err := writeJSON(w, format, quotes); done {
		return err
	}
	if format == formatPlain {
		for _, q := range quotes {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				q.Domain, yesNo(q.Available), q.CustomerPrice.String(), q.Currency,
				q.WholesaleRegistrar, q.WholesalePrice.String()); err != nil {
				return err
			}
		}
		return nil
	}

	tw := newTabWriter(w)
	fmt.Fprintln(tw, "DOMAIN\tAVAILABLE\tPRICE\tLOCATION\tREGISTRAR\tWHOLESALE\tMARGIN\tCHECKED")
	for _, q := range quotes {
		wholesale, margin := "-", "-"
		if q.Available {
			wholesale = "$" + q.WholesalePrice.StringFixed(2)
			margin = "$" + q.MarginAmount.StringFixed(2)
			switch {
			case q.CeilingApplied:
				margin += " (ceiling)"
			case q.FloorApplied:
				margin += " (floor)"
			}
		}
		checked := fmt.Sprintf("%d", q.RegistrarsChecked)
		if q.FromCache {
			checked += " (cached)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			q.Domain, yesNo(q.Available), q.Display(), q.Location, q.WholesaleRegistrar, wholesale, margin, checked)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !details {
		return nil
	}

	for _, q := range quotes {
		if len(q.Registrars) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", q.Domain)
		tw = newTabWriter(w)
		fmt.Fprintln(tw, "  REGISTRAR\tAVAILABLE\tPRICE\tPREMIUM\tLATENCY\tERROR")
		for _, r := range q.Registrars {
			price := "-"
			if r.Available {
				price = r.Price.StringFixed(2) + " " + r.Currency
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%dms\t%s\n",
				r.Registrar, yesNo(r.Available), price, yesNo(r.Premium), r.LatencyMs, r.Error)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func writeSuggestions(w io.Writer, format outputFormat, rows []suggest.Suggestion) error {
	if done, err := writeJSON(w, format, rows); done {
		return err
	}
	if format == formatPlain {
		for _, s := range rows {
			if _, err := fmt.Fprintf(w, "%s\t%g\t%s\t%s\n", s.Domain, s.Score, s.Quote.CustomerPrice.String(), s.Quote.Currency); err != nil {
				return err
			}
		}
		return nil
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "DOMAIN\tSCORE\tPRICE\tREGISTRAR\tPOPULAR TLD")
	for _, s := range rows {
		fmt.Fprintf(tw, "%s\t%g\t%s\t%s\t%s\n", s.Domain, s.Score, s.Quote.Display(), s.Quote.WholesaleRegistrar, yesNo(s.Popular))
	}
	return tw.Flush()
}

func orderPrice(o *order.Order) string {
	return o.CustomerPrice.StringFixed(2) + " " + o.Currency
}

func writeOrders(w io.Writer, format outputFormat, orders []*order.Order) error {
	if done, err := writeJSON(w, format, orders); done {
		return err
	}
	if format == formatPlain {
		for _, o := range orders {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", o.ID, o.Domain, o.Status, o.Progress, orderPrice(o)); err != nil {
				return err
			}
		}
		return nil
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "ORDER\tDOMAIN\tSTATUS\tPAYMENT\tPROGRESS\tPRICE\tREGISTRAR\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			o.ID, o.Domain, o.Status, o.PaymentStatus, o.Progress, orderPrice(o), o.Registrar,
			o.CreatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func writeReport(w io.Writer, format outputFormat, r order.Report) error {
	if done, err := writeJSON(w, format, []order.Report{r}); done {
		return err
	}
	if format == formatPlain {
		for _, s := range r.Steps {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.ID, s.Step, s.Status); err != nil {
				return err
			}
		}
		return nil
	}
	fmt.Fprintf(w, "Order %s  %s  %s (%d%%)  ETA %s\n", r.ID, r.Domain, r.Status, r.Progress, r.ETA)
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDESCRIPTION")
	for _, s := range r.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Step, s.Status, s.Description)
	}
	return tw.Flush()
}

type locationRow struct {
	Location string `json:"location"`
	Markup   string `json:"markup"`
	Currency string `json:"currency"`
	Symbol   string `json:"symbol"`
}

func writeLocations(w io.Writer, format outputFormat, rules pricing.Rules) error {
	rows := make([]locationRow, 0, len(rules))
	for _, k := range rules.Locations() {
		r := rules[k]
		rows = append(rows, locationRow{Location: k, Markup: r.Markup.String(), Currency: r.Currency, Symbol: r.Symbol})
	}
	if done, err := writeJSON(w, format, rows); done {
		return err
	}
	if format == formatPlain {
		for _, r := range rows {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.Location, r.Markup, r.Currency); err != nil {
				return err
			}
		}
		return nil
	}
	tw := newTabWriter(w)
	fmt.Fprintln(tw, "LOCATION\tMARKUP\tCURRENCY")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s%s\t%s\n", r.Location, r.Symbol, r.Markup, r.Currency)
	}
	return tw.Flush()
}
