package payments

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/pkg/config"
	"github.com/dukamoja/pos-backend/pkg/daraja"
	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/phone"
)

// Gateway abstracts the M-Pesa client for testability.
type Gateway interface {
	StkPush(ctx context.Context, params daraja.StkPushParams) (*daraja.StkPushResult, error)
	QueryStatus(ctx context.Context, checkoutRequestID string) (*daraja.StatusQueryResult, error)
}

// Daraja caps these at the wire level; reject early with a clear message
// instead of letting the gateway bounce the request.
const (
	maxAccountReferenceLen = 12
	maxDescriptionLen      = 13

	defaultAccountReference = "DukaPOS"
	defaultDescription      = "DukaPOS sale"
)

var (
	minPushAmount = decimal.NewFromInt(1)
	maxPushAmount = decimal.NewFromInt(250000)
)

// ServiceParams wires the payments service dependencies.
type ServiceParams struct {
	Repo      Repository
	Gateway   Gateway
	Audit     audit.Recorder
	Logger    *logger.Logger
	Reconcile config.ReconcileConfig
}

// Service owns the POS-facing payment operations: initiating push prompts,
// reporting their progress, and surfacing recent unsolicited deposits.
type Service struct {
	repo      Repository
	gateway   Gateway
	audit     audit.Recorder
	logg      *logger.Logger
	window    time.Duration
	tolerance decimal.Decimal
	now       func() time.Time
}

// NewService validates dependencies and constructs the payments service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}

	tolerance, err := decimal.NewFromString(params.Reconcile.AmountTolerance)
	if err != nil {
		return nil, fmt.Errorf("parsing amount tolerance: %w", err)
	}
	window := params.Reconcile.Window
	if window <= 0 {
		window = 5 * time.Minute
	}

	return &Service{
		repo:      params.Repo,
		gateway:   params.Gateway,
		audit:     params.Audit,
		logg:      params.Logger,
		window:    window,
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

// InitiatePush validates the request, prompts the customer's phone through
// the gateway, and records a PENDING transaction keyed by the gateway's
// CheckoutRequestID. The callback, not this call, decides the final status.
func (s *Service) InitiatePush(ctx context.Context, input InitiatePushInput) (*PushResult, error) {
	msisdn, err := phone.Canonicalize(input.PhoneNumber)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(input.Amount); err != nil {
		return nil, err
	}
	if input.BranchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch id is required")
	}

	reference := strings.TrimSpace(input.AccountReference)
	if reference == "" {
		reference = defaultAccountReference
	}
	if len(reference) > maxAccountReferenceLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("account reference exceeds %d characters", maxAccountReferenceLen))
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = defaultDescription
	}
	if len(description) > maxDescriptionLen {
		description = description[:maxDescriptionLen]
	}

	pushed, err := s.gateway.StkPush(ctx, daraja.StkPushParams{
		PhoneNumber:      msisdn,
		Amount:           input.Amount,
		AccountReference: reference,
		Description:      description,
	})
	if err != nil {
		return nil, err
	}

	initiatedBy := input.InitiatedBy
	txn := &models.PaymentTransaction{
		CheckoutRequestID: &pushed.CheckoutRequestID,
		MerchantRequestID: &pushed.MerchantRequestID,
		PhoneNumber:       msisdn,
		Amount:            input.Amount,
		AccountReference:  reference,
		Status:            enums.PaymentStatusPending,
		BranchID:          input.BranchID,
		InitiatedBy:       &initiatedBy,
	}
	if err := s.repo.Create(ctx, txn); err != nil {
		// The prompt is already on the customer's phone; the callback for
		// this CheckoutRequestID will land unmatched and be flagged in logs.
		if s.logg != nil {
			lctx := s.logg.WithField(ctx, "checkout_request_id", pushed.CheckoutRequestID)
			s.logg.Error(lctx, "payments.persist_after_push_failed", err)
		}
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:    input.InitiatedBy,
		Action:     audit.ActionPushInitiated,
		EntityType: audit.EntityPaymentTransaction,
		EntityID:   txn.ID.String(),
		NewValue: map[string]any{
			"checkout_request_id": pushed.CheckoutRequestID,
			"amount":              input.Amount.String(),
			"phone_number":        phone.Mask(msisdn),
			"branch_id":           input.BranchID.String(),
		},
	})

	return &PushResult{
		TransactionID:     txn.ID,
		CheckoutRequestID: pushed.CheckoutRequestID,
		MerchantRequestID: pushed.MerchantRequestID,
		CustomerMessage:   pushed.CustomerMessage,
		State:             PushStatePending,
	}, nil
}

// PushStatus reports the stored state of a push request. For transactions
// still pending, the gateway is queried best-effort so a cashier sees a
// cancellation before the callback lands; the stored row is never mutated
// here because the callback remains the only writer.
func (s *Service) PushStatus(ctx context.Context, checkoutRequestID string) (*StatusResult, error) {
	checkoutRequestID = strings.TrimSpace(checkoutRequestID)
	if checkoutRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id is required")
	}

	txn, err := s.repo.FindByCheckoutRequestID(ctx, checkoutRequestID)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{
		CheckoutRequestID: checkoutRequestID,
		State:             stateForTransaction(txn),
		ResultCode:        txn.ResultCode,
		ResultDesc:        txn.ResultDesc,
		ReceiptNumber:     txn.MpesaReceiptNumber,
		Amount:            txn.Amount.String(),
		CompletedAt:       txn.CompletedAt,
	}

	if txn.Status == enums.PaymentStatusPending {
		if live := s.queryLiveState(ctx, checkoutRequestID); live != nil {
			result.State = stateForResultCode(live.code)
			result.ResultCode = &live.code
			result.ResultDesc = &live.desc
		}
	}

	return result, nil
}

type liveState struct {
	code int
	desc string
}

func (s *Service) queryLiveState(ctx context.Context, checkoutRequestID string) *liveState {
	status, err := s.gateway.QueryStatus(ctx, checkoutRequestID)
	if err != nil {
		// The query endpoint errors while a prompt is in flight; stay pending.
		if s.logg != nil {
			lctx := s.logg.WithField(ctx, "checkout_request_id", checkoutRequestID)
			s.logg.Warn(lctx, "payments.status_query_unavailable")
		}
		return nil
	}
	code, err := strconv.Atoi(strings.TrimSpace(status.ResultCode))
	if err != nil {
		return nil
	}
	return &liveState{code: code, desc: status.ResultDesc}
}

// PollDeposits reports the newest completed unsolicited till deposit in the
// branch within the reconciliation window, optionally narrowed by bill
// reference and by amounts within tolerance of the sale total being rung up.
// A quiet window answers found=false, not an error.
func (s *Service) PollDeposits(ctx context.Context, branchID uuid.UUID, reference string, amount *decimal.Decimal) (*PollResult, error) {
	if branchID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "branch id is required")
	}
	reference = strings.TrimSpace(reference)

	since := s.now().Add(-s.window)
	rows, err := s.repo.FindRecentUnsolicited(ctx, branchID, since)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		txn := &rows[i]
		if reference != "" && !strings.EqualFold(reference, txn.AccountReference) {
			continue
		}
		if amount != nil && txn.Amount.Sub(*amount).Abs().GreaterThan(s.tolerance) {
			continue
		}
		view := depositView(txn)
		return &PollResult{Found: true, Deposit: &view}, nil
	}
	return &PollResult{Found: false}, nil
}

func depositView(txn *models.PaymentTransaction) DepositView {
	receipt := ""
	if txn.MpesaReceiptNumber != nil {
		receipt = *txn.MpesaReceiptNumber
	}
	return DepositView{
		TransactionID: txn.ID,
		ReceiptNumber: receipt,
		Amount:        txn.Amount.String(),
		PhoneNumber:   phone.Mask(txn.PhoneNumber),
		ReceivedAt:    txn.CreatedAt,
		BranchID:      txn.BranchID,
		Reference:     txn.AccountReference,
		CompletedAt:   txn.CompletedAt,
	}
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(0)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be a whole number of shillings")
	}
	if amount.LessThan(minPushAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be at least 1")
	}
	if amount.GreaterThan(maxPushAmount) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount exceeds the per-transaction limit")
	}
	return nil
}
