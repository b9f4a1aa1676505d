package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/internal/sales"
	"github.com/dukamoja/pos-backend/pkg/config"
	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
	"github.com/dukamoja/pos-backend/pkg/metrics"
)

// TxRunner executes a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Match outcomes reported to metrics.
const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
)

// MatcherParams wires the matcher dependencies.
type MatcherParams struct {
	Tx        TxRunner
	Sales     sales.Repository
	Audit     audit.Recorder
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
	Reconcile config.ReconcileConfig
}

// Matcher attaches a completed till deposit to the sale it most plausibly
// paid for. Matching is heuristic: same branch, sale flagged for verification
// within the window before the deposit, amount within tolerance. Ties on
// amount go to the most recently flagged sale.
type Matcher struct {
	tx        TxRunner
	sales     sales.Repository
	audit     audit.Recorder
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	window    time.Duration
	tolerance decimal.Decimal
}

// Result reports what a match attempt did.
type Result struct {
	Matched bool
	SaleID  uuid.UUID
}

// NewMatcher validates dependencies and constructs the matcher.
func NewMatcher(params MatcherParams) (*Matcher, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if params.Sales == nil {
		return nil, fmt.Errorf("sales repository is required")
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

	return &Matcher{
		tx:        params.Tx,
		sales:     params.Sales,
		audit:     params.Audit,
		metrics:   params.Metrics,
		logg:      params.Logger,
		window:    window,
		tolerance: tolerance,
	}, nil
}

// Match tries to verify exactly one pending sale against the deposit. The
// candidate scan and the guarded status flip run in one transaction so two
// concurrent deposits cannot verify the same sale. An unmatched deposit is
// not an error; it stays available for the POS poll and manual verification.
func (m *Matcher) Match(ctx context.Context, txn *models.PaymentTransaction) (*Result, error) {
	if txn == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment transaction is required")
	}
	if txn.Status != enums.PaymentStatusCompleted || txn.MpesaReceiptNumber == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only completed receipts can be matched")
	}

	receivedAt := txn.CreatedAt
	if txn.TransactionDate != nil {
		receivedAt = *txn.TransactionDate
	}
	since := receivedAt.Add(-m.window)

	result := &Result{}
	err := m.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := m.sales.WithTx(tx)

		candidates, err := repo.FindCandidates(ctx, txn.BranchID, since)
		if err != nil {
			return err
		}

		for i := range candidates {
			sale := &candidates[i]
			if sale.MpesaAmount.Sub(txn.Amount).Abs().GreaterThan(m.tolerance) {
				continue
			}

			won, err := repo.MarkVerified(ctx, sale.ID, sales.VerificationUpdate{
				ReceiptNumber: *txn.MpesaReceiptNumber,
				Method:        enums.VerificationMethodAutomatic,
				Notes:         fmt.Sprintf("auto-matched deposit %s", txn.ID),
				VerifiedAt:    time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			if !won {
				// Another deposit verified this sale first; try the next one.
				continue
			}

			m.audit.RecordWithTx(ctx, tx, audit.Entry{
				ActorID:    txn.Initiator(),
				Action:     audit.ActionSaleAutoVerified,
				EntityType: audit.EntitySale,
				EntityID:   sale.ID.String(),
				OldValue: map[string]any{
					"mpesa_verification_status": enums.VerificationPending,
				},
				NewValue: map[string]any{
					"mpesa_verification_status": enums.VerificationVerified,
					"verification_method":       enums.VerificationMethodAutomatic,
					"mpesa_receipt_number":      *txn.MpesaReceiptNumber,
					"payment_transaction_id":    txn.ID.String(),
				},
			})

			result.Matched = true
			result.SaleID = sale.ID
			return nil
		}

		return nil
	})
	if err != nil {
		m.metrics.ObserveMatch("error")
		return nil, err
	}

	if result.Matched {
		m.metrics.ObserveMatch(outcomeMatched)
		m.logMatch(ctx, txn, result.SaleID)
	} else {
		m.metrics.ObserveMatch(outcomeUnmatched)
		m.logUnmatched(ctx, txn)
	}
	return result, nil
}

func (m *Matcher) logMatch(ctx context.Context, txn *models.PaymentTransaction, saleID uuid.UUID) {
	if m.logg == nil {
		return
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"sale_id":        saleID.String(),
		"branch_id":      txn.BranchID.String(),
	})
	m.logg.Info(ctx, "reconcile.sale_verified")
}

func (m *Matcher) logUnmatched(ctx context.Context, txn *models.PaymentTransaction) {
	if m.logg == nil {
		return
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"transaction_id": txn.ID.String(),
		"branch_id":      txn.BranchID.String(),
		"amount":         txn.Amount.String(),
	})
	m.logg.Info(ctx, "reconcile.no_matching_sale")
}
