package notification

import (
	"errors"
	"strings"
)

// ErrInvalidPhone is returned when a phone string cannot be normalized
// into a dialable number.
var ErrInvalidPhone = errors.New("invalid phone number")

const (
	countryCodeEcuador  = "593"
	countryCodeColombia = "57"
	// Fixed-line numbers with no area code are assumed to be Bogota.
	defaultAreaCode = "1"

	minDialableDigits = 10
)

// NormalizePhone turns a raw phone string into a canonical digit string
// with country code, without a leading plus. Rules are applied in order,
// first match wins:
//
//  1. 10 digits starting with 09: Ecuadorian mobile in national format;
//     drop the trunk zero and prepend 593.
//  2. 10 digits starting with 3 or 6: Colombian mobile; prepend 57.
//  3. Exactly 7 digits: Colombian fixed line; prepend 57 and the default
//     area code.
//  4. 11+ digits already carrying a known country code: pass through.
//  5. Anything else is returned as raw digits; delivery may still fail
//     downstream if the gateway does not recognize the country.
//
// Fewer than 10 residual digits is rejected with ErrInvalidPhone. The
// function is total and idempotent on already-canonical input.
func NormalizePhone(raw string) (string, error) {
	digits := digitsOnly(raw)
	if digits == "" {
		return "", ErrInvalidPhone
	}

	switch {
	case len(digits) == 10 && strings.HasPrefix(digits, "09"):
		digits = countryCodeEcuador + digits[1:]
	case len(digits) == 10 && (digits[0] == '3' || digits[0] == '6'):
		digits = countryCodeColombia + digits
	case len(digits) == 7:
		digits = countryCodeColombia + defaultAreaCode + digits
	case len(digits) >= 11 && hasKnownCountryCode(digits):
		// Already canonical.
	}

	if len(digits) < minDialableDigits {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// hasKnownCountryCode reports whether digits already start with a country
// code this pipeline supports, at the length that code implies.
func hasKnownCountryCode(digits string) bool {
	if strings.HasPrefix(digits, countryCodeEcuador) && len(digits) == 12 {
		return true
	}
	if strings.HasPrefix(digits, countryCodeColombia) && len(digits) == 12 {
		return true
	}
	return false
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
