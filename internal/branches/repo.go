package branches

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/dukamoja/pos-backend/pkg/db/models"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

// Repository reads branch records. Branches are owned by the POS subsystem;
// the payments engine never writes them.
type Repository interface {
	DefaultActive(ctx context.Context) (*models.Branch, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a branch repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// DefaultActive resolves the branch unsolicited till deposits are attributed
// to: the branch marked default, falling back to the oldest active branch.
func (r *repository) DefaultActive(ctx context.Context) (*models.Branch, error) {
	var branch models.Branch
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("is_default DESC, created_at ASC").
		First(&branch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active branch configured")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "querying default branch")
	}
	return &branch, nil
}
