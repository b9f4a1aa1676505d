package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

// Repository manages persistence for payment transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.PaymentTransaction) error
	Save(ctx context.Context, txn *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentTransaction, error)
	FindByReceiptNumber(ctx context.Context, receipt string) (*models.PaymentTransaction, error)
	FindRecentUnsolicited(ctx context.Context, branchID uuid.UUID, since time.Time) ([]models.PaymentTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment transaction repository bound to the
// provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	if err := r.db.WithContext(ctx).Create(txn).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating payment transaction")
	}
	return nil
}

func (r *repository) Save(ctx context.Context, txn *models.PaymentTransaction) error {
	if err := r.db.WithContext(ctx).Save(txn).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving payment transaction")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	return handleLookup(&txn, err)
}

func (r *repository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("checkout_request_id = ?", checkoutRequestID).First(&txn).Error
	return handleLookup(&txn, err)
}

func (r *repository) FindByReceiptNumber(ctx context.Context, receipt string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("mpesa_receipt_number = ?", receipt).First(&txn).Error
	return handleLookup(&txn, err)
}

// FindRecentUnsolicited returns completed till deposits in the branch that no
// STK push produced, newest first. The POS polls these to attach a deposit to
// the sale being rung up.
func (r *repository) FindRecentUnsolicited(ctx context.Context, branchID uuid.UUID, since time.Time) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Where("checkout_request_id IS NULL").
		Where("status = ?", enums.PaymentStatusCompleted).
		Where("created_at >= ?", since).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying recent deposits")
	}
	return rows, nil
}

func handleLookup(txn *models.PaymentTransaction, err error) (*models.PaymentTransaction, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying payment transaction")
	}
	return txn, nil
}
