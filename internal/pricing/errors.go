package pricing

import "errors"

var (
	// ErrAllRegistrarsFailed means no registrar produced a usable answer.
	// It is distinct from a domain that every registrar reports as taken.
	ErrAllRegistrarsFailed = errors.New("pricing: all registrars failed")

	ErrConfiguration = errors.New("pricing: invalid configuration")
	ErrInvalidDomain = errors.New("pricing: invalid domain")
)
