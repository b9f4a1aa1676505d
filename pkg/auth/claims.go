package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dukamoja/pos-backend/pkg/enums"
)

// AccessTokenClaims identify the acting staff member. BranchID scopes every
// branch-sensitive operation (poll, manual verify) to the till the staffer is
// working at.
type AccessTokenClaims struct {
	UserID   uuid.UUID       `json:"user_id"`
	BranchID *uuid.UUID      `json:"branch_id,omitempty"`
	Role     enums.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

// AccessTokenPayload carries the data minted into a staff token.
type AccessTokenPayload struct {
	UserID   uuid.UUID
	BranchID *uuid.UUID
	Role     enums.StaffRole
	JTI      string
}
