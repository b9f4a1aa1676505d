package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukamoja/pos-backend/pkg/enums"
)

// Sale is a narrow projection of the POS sale record. The payments engine
// owns ONLY the verification fields below; everything else on the sales table
// belongs to the POS subsystem and must never be written from here.
type Sale struct {
	ID                      uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BranchID                uuid.UUID                     `gorm:"column:branch_id;type:uuid;not null;index"`
	MpesaAmount             decimal.Decimal               `gorm:"column:mpesa_amount;type:numeric(12,2)"`
	FlaggedForVerification  bool                          `gorm:"column:flagged_for_verification;not null;default:false"`
	FlaggedAt               *time.Time                    `gorm:"column:flagged_at"`
	MpesaVerificationStatus enums.MpesaVerificationStatus `gorm:"column:mpesa_verification_status;type:varchar(16);not null;default:'NOT_APPLICABLE'"`
	MpesaReceiptNumber      *string                       `gorm:"column:mpesa_receipt_number"`
	VerifiedAt              *time.Time                    `gorm:"column:verified_at"`
	VerificationMethod      enums.VerificationMethod      `gorm:"column:verification_method;type:varchar(16);not null;default:'NOT_VERIFIED'"`
	VerificationNotes       *string                       `gorm:"column:verification_notes"`
	CreatedAt               time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (Sale) TableName() string {
	return "sales"
}
