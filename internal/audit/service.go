package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/logger"
)

// Actions recorded by the payments engine.
const (
	ActionPushInitiated     = "payment.push_initiated"
	ActionCallbackCompleted = "payment.callback_completed"
	ActionCallbackFailed    = "payment.callback_failed"
	ActionTillDeposit       = "payment.till_deposit_received"
	ActionSaleAutoVerified  = "sale.auto_verified"
	ActionReceiptChecked    = "payment.receipt_checked"
)

// Entity types referenced by audit entries.
const (
	EntityPaymentTransaction = "payment_transaction"
	EntitySale               = "sale"
)

// Entry captures one state transition.
type Entry struct {
	ActorID    uuid.UUID
	Action     string
	EntityType string
	EntityID   string
	OldValue   any
	NewValue   any
}

// Recorder is the single choke-point for audit writes. Writes are
// best-effort: a failed audit write is logged at error level but never rolls
// back or blocks the primary state change.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
	RecordWithTx(ctx context.Context, tx *gorm.DB, entry Entry)
}

type recorder struct {
	repo Repository
	logg *logger.Logger
}

// NewRecorder wires an audit recorder with the provided repository.
func NewRecorder(repo Repository, logg *logger.Logger) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &recorder{repo: repo, logg: logg}, nil
}

func (r *recorder) Record(ctx context.Context, entry Entry) {
	r.write(ctx, r.repo, entry)
}

func (r *recorder) RecordWithTx(ctx context.Context, tx *gorm.DB, entry Entry) {
	r.write(ctx, r.repo.WithTx(tx), entry)
}

func (r *recorder) write(ctx context.Context, repo Repository, entry Entry) {
	row, err := entry.toModel()
	if err == nil {
		err = repo.Create(ctx, row)
	}
	if err != nil && r.logg != nil {
		ctx = r.logg.WithFields(ctx, map[string]any{
			"audit_action": entry.Action,
			"entity_type":  entry.EntityType,
			"entity_id":    entry.EntityID,
		})
		r.logg.Error(ctx, "audit.write_failed", err)
	}
}

func (e Entry) toModel() (*models.AuditLogEntry, error) {
	if e.Action == "" {
		return nil, fmt.Errorf("audit action is required")
	}
	if e.EntityType == "" || e.EntityID == "" {
		return nil, fmt.Errorf("audit entity reference is required")
	}

	actor := e.ActorID
	if actor == uuid.Nil {
		actor = models.SystemActorID
	}

	oldValue, err := marshalValue(e.OldValue)
	if err != nil {
		return nil, fmt.Errorf("encode old value: %w", err)
	}
	newValue, err := marshalValue(e.NewValue)
	if err != nil {
		return nil, fmt.Errorf("encode new value: %w", err)
	}

	return &models.AuditLogEntry{
		UserID:     actor,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		OldValue:   oldValue,
		NewValue:   newValue,
	}, nil
}

func marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
