// Package phone canonicalizes Kenyan MSISDNs into the gateway's required
// countrycode+subscriber form and masks them for outward-facing reads.
package phone

import (
	"regexp"
	"strings"

	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

const countryCode = "254"

// Subscriber numbers for the two supported carriers start with 7 or 1 and
// carry eight further digits.
var subscriberRe = regexp.MustCompile(`^254(7|1)\d{8}$`)

// Canonicalize normalizes the many input formats staff and customers use
// (07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX, 2547XXXXXXXX, +2547XXXXXXXX, with
// spaces or dashes) into 254XXXXXXXXX. Numbers outside the supported
// subscriber prefixes are rejected.
func Canonicalize(raw string) (string, error) {
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number is required")
	}

	cleaned = strings.TrimPrefix(cleaned, "+")

	switch {
	case strings.HasPrefix(cleaned, countryCode):
		// already in canonical form, validated below
	case strings.HasPrefix(cleaned, "0") && len(cleaned) == 10:
		cleaned = countryCode + cleaned[1:]
	case (strings.HasPrefix(cleaned, "7") || strings.HasPrefix(cleaned, "1")) && len(cleaned) == 9:
		cleaned = countryCode + cleaned
	}

	if !subscriberRe.MatchString(cleaned) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "phone number is not a valid Safaricom or Airtel subscriber number").
			WithDetails(map[string]string{"phone": Mask(raw)})
	}
	return cleaned, nil
}

// Mask hides the middle digits of an MSISDN for logs and API responses.
// Anything shorter than eight characters is masked entirely.
func Mask(msisdn string) string {
	trimmed := strings.TrimSpace(msisdn)
	if len(trimmed) < 8 {
		return strings.Repeat("*", len(trimmed))
	}
	return trimmed[:4] + strings.Repeat("*", len(trimmed)-8) + trimmed[len(trimmed)-4:]
}
