package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dukamoja/pos-backend/pkg/db/models"
)

type fakeRepo struct {
	entries []*models.AuditLogEntry
	err     error
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, entry *models.AuditLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func TestRecorderWritesEntry(t *testing.T) {
	repo := &fakeRepo{}
	recorder, err := NewRecorder(repo, nil)
	require.NoError(t, err)

	actor := uuid.New()
	recorder.Record(context.Background(), Entry{
		ActorID:    actor,
		Action:     ActionPushInitiated,
		EntityType: EntityPaymentTransaction,
		EntityID:   "txn-1",
		NewValue:   map[string]string{"status": "PENDING"},
	})

	require.Len(t, repo.entries, 1)
	got := repo.entries[0]
	assert.Equal(t, actor, got.UserID)
	assert.Equal(t, ActionPushInitiated, got.Action)
	assert.JSONEq(t, `{"status":"PENDING"}`, string(got.NewValue))
	assert.Nil(t, got.OldValue)
}

func TestRecorderFallsBackToSystemActor(t *testing.T) {
	repo := &fakeRepo{}
	recorder, err := NewRecorder(repo, nil)
	require.NoError(t, err)

	recorder.Record(context.Background(), Entry{
		Action:     ActionTillDeposit,
		EntityType: EntityPaymentTransaction,
		EntityID:   "txn-2",
	})

	require.Len(t, repo.entries, 1)
	assert.Equal(t, models.SystemActorID, repo.entries[0].UserID)
}

func TestRecorderSwallowsWriteFailure(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	recorder, err := NewRecorder(repo, nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		recorder.Record(context.Background(), Entry{
			Action:     ActionSaleAutoVerified,
			EntityType: EntitySale,
			EntityID:   "sale-1",
		})
	})
	assert.Empty(t, repo.entries)
}

func TestRecorderRejectsIncompleteEntry(t *testing.T) {
	repo := &fakeRepo{}
	recorder, err := NewRecorder(repo, nil)
	require.NoError(t, err)

	recorder.Record(context.Background(), Entry{Action: ActionPushInitiated})
	assert.Empty(t, repo.entries)
}

func TestNewRecorderRequiresRepository(t *testing.T) {
	_, err := NewRecorder(nil, nil)
	assert.Error(t, err)
}
