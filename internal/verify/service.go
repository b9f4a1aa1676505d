package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/internal/payments"
	"github.com/dukamoja/pos-backend/pkg/config"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/metrics"
	"github.com/dukamoja/pos-backend/pkg/phone"
)

// Outcomes reported to metrics.
const (
	outcomeVerified       = "verified"
	outcomeNotFound       = "not_found"
	outcomeAmountMismatch = "amount_mismatch"
)

// Input is a manual receipt check performed by a manager or admin when
// automatic matching failed and the customer is standing at the till.
type Input struct {
	ReceiptNumber  string
	ExpectedAmount decimal.Decimal
	BranchID       uuid.UUID
	ActorID        uuid.UUID
	ActorRole      enums.StaffRole
}

// Evidence is what the staff member sees on a successful check. It is
// read-only proof that the money arrived; attaching it to a sale stays a
// human decision and is not done here.
type Evidence struct {
	ReceiptNumber      string                   `json:"mpesa_receipt_number"`
	Amount             string                   `json:"amount"`
	PhoneNumber        string                   `json:"phone_number"`
	ReceivedAt         time.Time                `json:"received_at"`
	VerificationMethod enums.VerificationMethod `json:"verification_method"`
}

// ServiceParams wires the verification service dependencies.
type ServiceParams struct {
	Payments  payments.Repository
	Audit     audit.Recorder
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
	Reconcile config.ReconcileConfig
}

// Service answers "did this receipt really pay us" for manual follow-ups.
type Service struct {
	payments      payments.Repository
	audit         audit.Recorder
	metrics       *metrics.PaymentMetrics
	logg          *logger.Logger
	lookback      time.Duration
	minReceiptLen int
	tolerance     decimal.Decimal
	now           func() time.Time
}

// NewService validates dependencies and constructs the verification service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}

	lookback := params.Reconcile.ReceiptLookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	minLen := params.Reconcile.MinReceiptLen
	if minLen <= 0 {
		minLen = 8
	}
	tolerance, err := decimal.NewFromString(params.Reconcile.AmountTolerance)
	if err != nil {
		return nil, fmt.Errorf("parsing amount tolerance: %w", err)
	}

	return &Service{
		payments:      params.Payments,
		audit:         params.Audit,
		metrics:       params.Metrics,
		logg:          params.Logger,
		lookback:      lookback,
		minReceiptLen: minLen,
		tolerance:     tolerance,
		now:           time.Now,
	}, nil
}

// VerifyReceipt checks a hand-entered receipt against recorded deposits. A
// receipt outside the caller's branch or older than the lookback is reported
// as not found rather than leaking that it exists elsewhere. The check never
// consumes the receipt; repeated checks of the same receipt all succeed.
func (s *Service) VerifyReceipt(ctx context.Context, input Input) (*Evidence, error) {
	receipt := strings.ToUpper(strings.TrimSpace(input.ReceiptNumber))
	if len(receipt) < s.minReceiptLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("receipt number must be at least %d characters", s.minReceiptLen))
	}
	if input.ExpectedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected amount must be positive")
	}
	method, err := input.ActorRole.ManualVerificationMethod()
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot manually verify receipts")
	}

	txn, err := s.payments.FindByReceiptNumber(ctx, receipt)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, s.notFound(ctx, input, receipt)
		}
		return nil, err
	}

	receivedAt := txn.CreatedAt
	if txn.TransactionDate != nil {
		receivedAt = *txn.TransactionDate
	}

	expired := receivedAt.Before(s.now().Add(-s.lookback))
	if txn.Status != enums.PaymentStatusCompleted || txn.BranchID != input.BranchID || expired {
		return nil, s.notFound(ctx, input, receipt)
	}

	// The matcher's tolerance applies here too: a small rounding gap between
	// the sale total and what the customer sent is not a mismatch.
	if txn.Amount.Sub(input.ExpectedAmount).Abs().GreaterThan(s.tolerance) {
		s.metrics.ObserveManualCheck(outcomeAmountMismatch)
		s.recordCheck(ctx, input, receipt, outcomeAmountMismatch)
		return nil, pkgerrors.New(pkgerrors.CodeAmountMismatch,
			fmt.Sprintf("receipt amount %s does not match expected %s", txn.Amount.String(), input.ExpectedAmount.String())).
			WithDetails(map[string]any{
				"receipt_amount":  txn.Amount.String(),
				"expected_amount": input.ExpectedAmount.String(),
			})
	}

	s.metrics.ObserveManualCheck(outcomeVerified)
	s.recordCheck(ctx, input, receipt, outcomeVerified)

	return &Evidence{
		ReceiptNumber:      receipt,
		Amount:             txn.Amount.String(),
		PhoneNumber:        phone.Mask(txn.PhoneNumber),
		ReceivedAt:         receivedAt,
		VerificationMethod: method,
	}, nil
}

func (s *Service) notFound(ctx context.Context, input Input, receipt string) error {
	s.metrics.ObserveManualCheck(outcomeNotFound)
	s.recordCheck(ctx, input, receipt, outcomeNotFound)
	return pkgerrors.New(pkgerrors.CodeNotFound, "receipt not found or expired")
}

func (s *Service) recordCheck(ctx context.Context, input Input, receipt, outcome string) {
	s.audit.Record(ctx, audit.Entry{
		ActorID:    input.ActorID,
		Action:     audit.ActionReceiptChecked,
		EntityType: audit.EntityPaymentTransaction,
		EntityID:   receipt,
		NewValue: map[string]any{
			"outcome":         outcome,
			"branch_id":       input.BranchID.String(),
			"expected_amount": input.ExpectedAmount.String(),
		},
	})
}
