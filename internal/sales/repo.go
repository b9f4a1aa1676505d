package sales

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

// VerificationUpdate carries the fields written when a sale's mobile-money
// leg is confirmed.
type VerificationUpdate struct {
	ReceiptNumber string
	Method        enums.VerificationMethod
	Notes         string
	VerifiedAt    time.Time
}

// Repository is the payments engine's narrow write surface onto sales. Only
// the verification fields are ever touched.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	FindCandidates(ctx context.Context, branchID uuid.UUID, since time.Time) ([]models.Sale, error)
	MarkVerified(ctx context.Context, saleID uuid.UUID, update VerificationUpdate) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a sales repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sale).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying sale")
	}
	return &sale, nil
}

// FindCandidates returns sales in the branch still awaiting verification,
// flagged within the window, most recently flagged first.
func (r *repository) FindCandidates(ctx context.Context, branchID uuid.UUID, since time.Time) ([]models.Sale, error) {
	var rows []models.Sale
	err := r.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Where("flagged_for_verification = ?", true).
		Where("mpesa_verification_status = ?", enums.VerificationPending).
		Where("flagged_at >= ?", since).
		Order("flagged_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying verification candidates")
	}
	return rows, nil
}

// MarkVerified flips the sale to VERIFIED if and only if it is still pending.
// The status guard in the WHERE clause makes the write at-most-once under
// concurrent reconcilers; the boolean reports whether this call won.
func (r *repository) MarkVerified(ctx context.Context, saleID uuid.UUID, update VerificationUpdate) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Sale{}).
		Where("id = ?", saleID).
		Where("mpesa_verification_status = ?", enums.VerificationPending).
		Updates(map[string]any{
			"mpesa_verification_status": enums.VerificationVerified,
			"mpesa_receipt_number":      update.ReceiptNumber,
			"verification_method":       update.Method,
			"verification_notes":        update.Notes,
			"verified_at":               update.VerifiedAt,
			"flagged_for_verification":  false,
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, result.Error, "marking sale verified")
	}
	return result.RowsAffected > 0, nil
}
