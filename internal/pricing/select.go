package pricing

import "github.com/benithors/dotpricecli/internal/registrar"

// cheapest returns the lowest-priced available quote. quotes are in
// completion order, so ties go to the registrar that answered first.
func cheapest(quotes []registrar.Quote) (registrar.Quote, bool) {
	var (
		best  registrar.Quote
		found bool
	)
	for _, q := range quotes {
		if q.Failed() || !q.Available {
			continue
		}
		if !found || q.Price.LessThan(best.Price) {
			best = q
			found = true
		}
	}
	return best, found
}

func allFailed(quotes []registrar.Quote) bool {
	for _, q := range quotes {
		if !q.Failed() {
			return false
		}
	}
	return true
}

// failureSummary lists registrar errors for the AllRegistrarsFailed error.
func failureSummary(quotes []registrar.Quote) string {
	s := ""
	for i, q := range quotes {
		if i > 0 {
			s += "; "
		}
		s += q.Registrar + ": " + q.Error
	}
	return s
}
