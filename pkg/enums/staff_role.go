package enums

import "fmt"

// StaffRole identifies the acting staff member's authority level.
type StaffRole string

const (
	StaffRoleCashier StaffRole = "cashier"
	StaffRoleManager StaffRole = "manager"
	StaffRoleAdmin   StaffRole = "admin"
)

var validStaffRoles = []StaffRole{
	StaffRoleCashier,
	StaffRoleManager,
	StaffRoleAdmin,
}

func (r StaffRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known StaffRole.
func (r StaffRole) IsValid() bool {
	for _, candidate := range validStaffRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// CanManuallyVerify reports whether the role may confirm receipts by hand.
func (r StaffRole) CanManuallyVerify() bool {
	return r == StaffRoleManager || r == StaffRoleAdmin
}

// ManualVerificationMethod maps a staff role to the verification method
// recorded against the sale.
func (r StaffRole) ManualVerificationMethod() (VerificationMethod, error) {
	switch r {
	case StaffRoleManager:
		return VerificationMethodManualManager, nil
	case StaffRoleAdmin:
		return VerificationMethodManualAdmin, nil
	default:
		return "", fmt.Errorf("role %q cannot manually verify payments", r)
	}
}
