package enums

import "fmt"

// MpesaVerificationStatus tracks whether a sale's mobile-money leg has been
// confirmed against a gateway payment. NOT_APPLICABLE is terminal and set when
// the sale has no mobile-money leg; PENDING is the only state the payments
// engine may transition out of.
type MpesaVerificationStatus string

const (
	VerificationNotApplicable MpesaVerificationStatus = "NOT_APPLICABLE"
	VerificationPending       MpesaVerificationStatus = "PENDING"
	VerificationVerified      MpesaVerificationStatus = "VERIFIED"
	VerificationFailed        MpesaVerificationStatus = "FAILED"
)

var validVerificationStatuses = []MpesaVerificationStatus{
	VerificationNotApplicable,
	VerificationPending,
	VerificationVerified,
	VerificationFailed,
}

func (v MpesaVerificationStatus) String() string {
	return string(v)
}

// IsValid reports whether the value is a known MpesaVerificationStatus.
func (v MpesaVerificationStatus) IsValid() bool {
	for _, candidate := range validVerificationStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseMpesaVerificationStatus converts raw input into a MpesaVerificationStatus.
func ParseMpesaVerificationStatus(value string) (MpesaVerificationStatus, error) {
	for _, candidate := range validVerificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification status %q", value)
}
