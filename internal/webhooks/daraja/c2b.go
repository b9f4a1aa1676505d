package daraja

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/internal/branches"
	"github.com/dukamoja/pos-backend/internal/payments"
	"github.com/dukamoja/pos-backend/pkg/db"
	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/metrics"
	"github.com/dukamoja/pos-backend/pkg/phone"
)

// C2BConfirmation is a customer-initiated till deposit. By the time the
// gateway sends it the money has already moved, so ingestion can only record,
// never reject.
type C2BConfirmation struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
}

// C2BServiceParams wires the till-deposit ingester dependencies.
type C2BServiceParams struct {
	Payments payments.Repository
	Branches branches.Repository
	Audit    audit.Recorder
	Guard    *Guard
	Matcher  Matcher
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// C2BService records unsolicited till deposits and hands them to the matcher.
type C2BService struct {
	payments payments.Repository
	branches branches.Repository
	audit    audit.Recorder
	guard    *Guard
	matcher  Matcher
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
}

// NewC2BService validates dependencies and constructs the ingester.
func NewC2BService(params C2BServiceParams) (*C2BService, error) {
	if params.Payments == nil {
		return nil, fmt.Errorf("payments repository is required")
	}
	if params.Branches == nil {
		return nil, fmt.Errorf("branches repository is required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	return &C2BService{
		payments: params.Payments,
		branches: params.Branches,
		audit:    params.Audit,
		guard:    params.Guard,
		matcher:  params.Matcher,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Validate is the pre-payment hook. Deposits to the till are always accepted;
// only a structurally broken payload is refused.
func (s *C2BService) Validate(ctx context.Context, conf *C2BConfirmation) error {
	if conf == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "confirmation payload is required")
	}
	if _, err := parseDepositAmount(conf.TransAmount); err != nil {
		return err
	}
	return nil
}

// Confirm records the deposit. TransID is the gateway receipt and globally
// unique, so it doubles as the idempotency key; a replayed confirmation is a
// no-op.
func (s *C2BService) Confirm(ctx context.Context, conf *C2BConfirmation) error {
	if conf == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "confirmation payload is required")
	}
	receipt := strings.ToUpper(strings.TrimSpace(conf.TransID))
	if receipt == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "confirmation missing TransID")
	}
	ctx = s.withDepositFields(ctx, receipt, conf)

	amount, err := parseDepositAmount(conf.TransAmount)
	if err != nil {
		s.metrics.ObserveConfirmation(outcomeError)
		return err
	}

	if !s.guard.Begin(ctx, scopeC2BConfirm, receipt) {
		s.metrics.ObserveConfirmation(outcomeDuplicate)
		s.logInfoC2B(ctx, "webhooks.c2b_duplicate_delivery")
		return nil
	}

	if _, err := s.payments.FindByReceiptNumber(ctx, receipt); err == nil {
		s.metrics.ObserveConfirmation(outcomeDuplicate)
		s.logInfoC2B(ctx, "webhooks.c2b_already_recorded")
		return nil
	} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		s.guard.Release(ctx, scopeC2BConfirm, receipt)
		s.metrics.ObserveConfirmation(outcomeError)
		return err
	}

	branch, err := s.branches.DefaultActive(ctx)
	if err != nil {
		s.guard.Release(ctx, scopeC2BConfirm, receipt)
		s.metrics.ObserveConfirmation(outcomeError)
		return err
	}

	txn, err := s.buildTransaction(conf, receipt, amount, branch)
	if err != nil {
		s.guard.Release(ctx, scopeC2BConfirm, receipt)
		s.metrics.ObserveConfirmation(outcomeError)
		return err
	}

	if err := s.payments.Create(ctx, txn); err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent delivery of the same deposit.
			s.metrics.ObserveConfirmation(outcomeDuplicate)
			s.logInfoC2B(ctx, "webhooks.c2b_concurrent_duplicate")
			return nil
		}
		s.guard.Release(ctx, scopeC2BConfirm, receipt)
		s.metrics.ObserveConfirmation(outcomeError)
		return err
	}

	s.audit.Record(ctx, audit.Entry{
		ActorID:    models.SystemActorID,
		Action:     audit.ActionTillDeposit,
		EntityType: audit.EntityPaymentTransaction,
		EntityID:   txn.ID.String(),
		NewValue: map[string]any{
			"mpesa_receipt_number": receipt,
			"amount":               amount.String(),
			"branch_id":            branch.ID.String(),
			"bill_ref":             conf.BillRefNumber,
		},
	})

	s.metrics.ObserveConfirmation("recorded")

	if s.matcher != nil {
		if _, err := s.matcher.Match(ctx, txn); err != nil && s.logg != nil {
			s.logg.Error(ctx, "webhooks.reconcile_failed", err)
		}
	}
	return nil
}

func (s *C2BService) buildTransaction(conf *C2BConfirmation, receipt string, amount decimal.Decimal, branch *models.Branch) (*models.PaymentTransaction, error) {
	// Newer gateway versions hash the MSISDN; store whatever arrived when it
	// does not canonicalize.
	msisdn := strings.TrimSpace(conf.MSISDN)
	if canonical, err := phone.Canonicalize(msisdn); err == nil {
		msisdn = canonical
	}
	if msisdn == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation missing MSISDN")
	}

	txn := &models.PaymentTransaction{
		PhoneNumber:        msisdn,
		Amount:             amount,
		AccountReference:   strings.TrimSpace(conf.BillRefNumber),
		MpesaReceiptNumber: &receipt,
		Status:             enums.PaymentStatusCompleted,
		BranchID:           branch.ID,
	}
	if ts, ok := decodeGatewayTime([]byte(conf.TransTime)); ok {
		txn.TransactionDate = &ts
		txn.CompletedAt = &ts
	}
	return txn, nil
}

func (s *C2BService) withDepositFields(ctx context.Context, receipt string, conf *C2BConfirmation) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"mpesa_receipt": receipt,
		"bill_ref":      conf.BillRefNumber,
		"amount":        conf.TransAmount,
	})
}

func (s *C2BService) logInfoC2B(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func parseDepositAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "confirmation TransAmount is not numeric")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "confirmation TransAmount must be positive")
	}
	return amount, nil
}

func isUniqueViolation(err error) bool {
	return db.IsUniqueViolation(err, "payment_transactions_mpesa_receipt_number_key")
}
