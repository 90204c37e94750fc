package order

import (
	"errors"
	"strings"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError lists every problem found in a contact or payment.
type ValidationError struct {
	Field    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return e.Field + " validation failed: " + strings.Join(e.Problems, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func minLen(s string, n int) bool {
	return len([]rune(strings.TrimSpace(s))) >= n
}

func (c Contact) Validate() error {
	var problems []string
	if !minLen(c.FirstName, 2) {
		problems = append(problems, "first name must be at least 2 characters")
	}
	if !minLen(c.LastName, 2) {
		problems = append(problems, "last name must be at least 2 characters")
	}
	if !strings.Contains(c.Email, "@") {
		problems = append(problems, "valid email address is required")
	}
	if !minLen(c.Phone, 10) {
		problems = append(problems, "valid phone number is required")
	}
	if !minLen(c.Address1, 5) {
		problems = append(problems, "valid address is required")
	}
	if !minLen(c.City, 2) {
		problems = append(problems, "city is required")
	}
	if !minLen(c.PostalCode, 3) {
		problems = append(problems, "valid postal code is required")
	}
	if len(problems) > 0 {
		return &ValidationError{Field: "contact", Problems: problems}
	}
	return nil
}

func (p Payment) Validate() error {
	var problems []string
	if !p.Amount.IsPositive() {
		problems = append(problems, "payment amount must be greater than 0")
	}
	switch p.Method {
	case MethodCreditCard:
		if len(strings.ReplaceAll(p.CardNumber, " ", "")) < 13 {
			problems = append(problems, "valid credit card number is required")
		}
		if len(p.CardExpiry) != 5 || p.CardExpiry[2] != '/' {
			problems = append(problems, "valid expiry date is required (MM/YY)")
		}
		if len(p.CardCVV) < 3 {
			problems = append(problems, "valid CVV is required")
		}
		if !minLen(p.CardholderName, 2) {
			problems = append(problems, "cardholder name is required")
		}
	case MethodPayPal:
		if !strings.Contains(p.PayPalEmail, "@") {
			problems = append(problems, "valid PayPal email is required")
		}
	case MethodStripe, MethodBankTransfer, MethodCrypto:
	default:
		problems = append(problems, "unknown payment method")
	}
	if len(problems) > 0 {
		return &ValidationError{Field: "payment", Problems: problems}
	}
	return nil
}
