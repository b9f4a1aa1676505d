package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukamoja/pos-backend/pkg/enums"
)

// SystemActorID is recorded as the initiator for unsolicited till deposits,
// which carry no staff actor of their own.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// PaymentTransaction is one record per gateway-side money movement attempt.
// Rows are never deleted; they are the audit substrate for reconciliation.
//
// Push-initiated rows are created PENDING with a CheckoutRequestID. Unsolicited
// till deposits are created COMPLETED immediately (the money has already
// moved) with only the MpesaReceiptNumber as a correlation key.
type PaymentTransaction struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CheckoutRequestID  *string             `gorm:"column:checkout_request_id;uniqueIndex"`
	MerchantRequestID  *string             `gorm:"column:merchant_request_id"`
	PhoneNumber        string              `gorm:"column:phone_number;not null"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	AccountReference   string              `gorm:"column:account_reference"`
	MpesaReceiptNumber *string             `gorm:"column:mpesa_receipt_number;uniqueIndex"`
	Status             enums.PaymentStatus `gorm:"column:status;type:varchar(16);not null;default:'PENDING'"`
	ResultCode         *int                `gorm:"column:result_code"`
	ResultDesc         *string             `gorm:"column:result_desc"`
	BranchID           uuid.UUID           `gorm:"column:branch_id;type:uuid;not null;index"`
	InitiatedBy        *uuid.UUID          `gorm:"column:initiated_by;type:uuid"`
	TransactionDate    *time.Time          `gorm:"column:transaction_date"`
	CompletedAt        *time.Time          `gorm:"column:completed_at"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName overrides GORM's pluralization.
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// Initiator returns the recorded actor, falling back to the system actor for
// unsolicited deposits.
func (t *PaymentTransaction) Initiator() uuid.UUID {
	if t.InitiatedBy != nil {
		return *t.InitiatedBy
	}
	return SystemActorID
}
