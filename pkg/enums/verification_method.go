package enums

import "fmt"

// VerificationMethod records how a sale's mobile-money leg was confirmed.
type VerificationMethod string

const (
	VerificationMethodAutomatic     VerificationMethod = "AUTOMATIC"
	VerificationMethodManualManager VerificationMethod = "MANUAL_MANAGER"
	VerificationMethodManualAdmin   VerificationMethod = "MANUAL_ADMIN"
	VerificationMethodNotVerified   VerificationMethod = "NOT_VERIFIED"
)

var validVerificationMethods = []VerificationMethod{
	VerificationMethodAutomatic,
	VerificationMethodManualManager,
	VerificationMethodManualAdmin,
	VerificationMethodNotVerified,
}

func (m VerificationMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known VerificationMethod.
func (m VerificationMethod) IsValid() bool {
	for _, candidate := range validVerificationMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseVerificationMethod converts raw input into a VerificationMethod.
func ParseVerificationMethod(value string) (VerificationMethod, error) {
	for _, candidate := range validVerificationMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification method %q", value)
}
