package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
)

// PushState is the POS-facing view of a push request's progress. It folds the
// gateway result code into something a cashier screen can act on.
type PushState string

const (
	PushStatePending   PushState = "pending"
	PushStateSuccess   PushState = "success"
	PushStateCancelled PushState = "cancelled"
	PushStateTimeout   PushState = "timeout"
	PushStateFailed    PushState = "failed"
)

// Gateway result codes with a dedicated POS-facing state.
const (
	resultCodeSuccess   = 0
	resultCodeCancelled = 1032
	resultCodeTimeout   = 1037
)

// InitiatePushInput is what the POS sends to prompt a customer's phone.
type InitiatePushInput struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
	BranchID         uuid.UUID
	InitiatedBy      uuid.UUID
}

// PushResult is returned once the gateway has accepted the prompt.
type PushResult struct {
	TransactionID     uuid.UUID `json:"transaction_id"`
	CheckoutRequestID string    `json:"checkout_request_id"`
	MerchantRequestID string    `json:"merchant_request_id"`
	CustomerMessage   string    `json:"customer_message"`
	State             PushState `json:"state"`
}

// StatusResult reports the current state of a push request.
type StatusResult struct {
	CheckoutRequestID string     `json:"checkout_request_id"`
	State             PushState  `json:"state"`
	ResultCode        *int       `json:"result_code,omitempty"`
	ResultDesc        *string    `json:"result_desc,omitempty"`
	ReceiptNumber     *string    `json:"mpesa_receipt_number,omitempty"`
	Amount            string     `json:"amount"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// PollResult tells a checkout client whether a matching till deposit landed.
type PollResult struct {
	Found   bool         `json:"found"`
	Deposit *DepositView `json:"deposit,omitempty"`
}

// DepositView is a sanitized projection of an unsolicited till deposit.
type DepositView struct {
	TransactionID uuid.UUID  `json:"transaction_id"`
	ReceiptNumber string     `json:"mpesa_receipt_number"`
	Amount        string     `json:"amount"`
	PhoneNumber   string     `json:"phone_number"`
	ReceivedAt    time.Time  `json:"received_at"`
	BranchID      uuid.UUID  `json:"branch_id"`
	Reference     string     `json:"account_reference,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// stateForTransaction maps a stored transaction to its POS-facing state.
func stateForTransaction(txn *models.PaymentTransaction) PushState {
	switch txn.Status {
	case enums.PaymentStatusCompleted:
		return PushStateSuccess
	case enums.PaymentStatusFailed:
		if txn.ResultCode != nil {
			return stateForResultCode(*txn.ResultCode)
		}
		return PushStateFailed
	default:
		return PushStatePending
	}
}

func stateForResultCode(code int) PushState {
	switch code {
	case resultCodeSuccess:
		return PushStateSuccess
	case resultCodeCancelled:
		return PushStateCancelled
	case resultCodeTimeout:
		return PushStateTimeout
	default:
		return PushStateFailed
	}
}
