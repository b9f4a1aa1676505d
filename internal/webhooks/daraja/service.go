package daraja

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/internal/payments"
	"github.com/dukamoja/pos-backend/internal/reconcile"
	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/metrics"
	"github.com/dukamoja/pos-backend/pkg/phone"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Matcher attaches completed deposits to pending sales.
type Matcher interface {
	Match(ctx context.Context, txn *models.PaymentTransaction) (*reconcile.Result, error)
}

// Callback outcomes reported to metrics.
const (
	outcomeCompleted = "completed"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeUnmatched = "unmatched"
	outcomeError     = "error"
)

// CallbackServiceParams wires the STK callback processor dependencies.
type CallbackServiceParams struct {
	Payments payments.Repository
	Tx       TxRunner
	Audit    audit.Recorder
	Guard    *Guard
	Matcher  Matcher
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// CallbackService applies STK push results to their pending transactions.
// Deliveries are at-least-once; every path through Process must be safe to
// replay.
type CallbackService struct {
	payments payments.Repository
	tx       TxRunner
	audit    audit.Recorder
	guard    *Guard
	matcher  Matcher
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

// NewCallbackService validates dependencies and constructs the processor.
func NewCallbackService(params CallbackServiceParams) (*CallbackService, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	return &CallbackService{
		payments: params.Payments,
		tx:       params.Tx,
		audit:    params.Audit,
		guard:    params.Guard,
		matcher:  params.Matcher,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Process applies one callback. Duplicates and callbacks for unknown push
// requests return nil so the handler acks them; the gateway must never be
// told to retry something we have already absorbed.
func (s *CallbackService) Process(ctx context.Context, cb *StkCallback) error {
	if cb == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "callback is required")
	}
	ctx = s.withCallbackFields(ctx, cb)

	if !s.guard.Begin(ctx, scopeStkCallback, cb.CheckoutRequestID) {
		s.metrics.ObserveCallback(outcomeDuplicate)
		s.logInfo(ctx, "webhooks.callback_duplicate_delivery")
		return nil
	}

	txn, err := s.payments.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			// No push of ours produced this id. Absorb it; the counter is
			// the signal for manual follow-up.
			s.metrics.ObserveCallback(outcomeUnmatched)
			s.logWarn(ctx, "webhooks.callback_unmatched")
			return nil
		}
		s.guard.Release(ctx, scopeStkCallback, cb.CheckoutRequestID)
		s.metrics.ObserveCallback(outcomeError)
		return err
	}

	if txn.Status.IsTerminal() {
		s.metrics.ObserveCallback(outcomeDuplicate)
		s.logInfo(ctx, "webhooks.callback_already_applied")
		return nil
	}

	if err := s.apply(ctx, txn, cb); err != nil {
		s.guard.Release(ctx, scopeStkCallback, cb.CheckoutRequestID)
		s.metrics.ObserveCallback(outcomeError)
		return err
	}

	if txn.Status == enums.PaymentStatusCompleted {
		s.metrics.ObserveCallback(outcomeCompleted)
		s.tryMatch(ctx, txn)
	} else {
		s.metrics.ObserveCallback(outcomeFailed)
	}
	return nil
}

// apply flips the transaction to its terminal state inside one transaction.
// The row is re-read under the transaction so two concurrent deliveries of
// the same callback cannot both apply.
func (s *CallbackService) apply(ctx context.Context, txn *models.PaymentTransaction, cb *StkCallback) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.payments.WithTx(tx)

		current, err := repo.FindByCheckoutRequestID(ctx, cb.CheckoutRequestID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			*txn = *current
			return nil
		}

		previousStatus := current.Status
		resultCode := cb.ResultCode
		current.ResultCode = &resultCode
		resultDesc := cb.ResultDesc
		current.ResultDesc = &resultDesc

		action := audit.ActionCallbackFailed
		if cb.ResultCode == 0 {
			action = audit.ActionCallbackCompleted
			current.Status = enums.PaymentStatusCompleted
			receipt := cb.ReceiptNumber
			current.MpesaReceiptNumber = &receipt
			current.TransactionDate = cb.TransactionDate
			now := time.Now().UTC()
			current.CompletedAt = &now
			if cb.Amount != nil && !cb.Amount.Equal(current.Amount) {
				s.logWarn(s.withField(ctx, "callback_amount", cb.Amount.String()),
					"webhooks.callback_amount_differs")
				current.Amount = *cb.Amount
			}
		} else {
			current.Status = enums.PaymentStatusFailed
		}

		if err := repo.Save(ctx, current); err != nil {
			return err
		}

		s.audit.RecordWithTx(ctx, tx, audit.Entry{
			ActorID:    current.Initiator(),
			Action:     action,
			EntityType: audit.EntityPaymentTransaction,
			EntityID:   current.ID.String(),
			OldValue:   map[string]any{"status": previousStatus},
			NewValue: map[string]any{
				"status":      current.Status,
				"result_code": cb.ResultCode,
				"result_desc": cb.ResultDesc,
			},
		})

		*txn = *current
		return nil
	})
}

// tryMatch runs reconciliation best-effort. A matching failure never turns
// into a gateway retry; the deposit stays visible to the POS poll.
func (s *CallbackService) tryMatch(ctx context.Context, txn *models.PaymentTransaction) {
	if s.matcher == nil {
		return
	}
	if _, err := s.matcher.Match(ctx, txn); err != nil && s.logg != nil {
		s.logg.Error(s.withField(ctx, "transaction_id", txn.ID.String()),
			"webhooks.reconcile_failed", err)
	}
}

func (s *CallbackService) withCallbackFields(ctx context.Context, cb *StkCallback) context.Context {
	if s.logg == nil {
		return ctx
	}
	fields := map[string]any{
		"checkout_request_id": cb.CheckoutRequestID,
		"result_code":         cb.ResultCode,
	}
	if cb.PhoneNumber != "" {
		fields["phone_number"] = phone.Mask(cb.PhoneNumber)
	}
	return s.logg.WithFields(ctx, fields)
}

func (s *CallbackService) withField(ctx context.Context, key string, value any) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(ctx, key, value)
}

func (s *CallbackService) logInfo(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *CallbackService) logWarn(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Warn(ctx, msg)
	}
}
