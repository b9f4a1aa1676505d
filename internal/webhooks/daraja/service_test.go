package daraja

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/internal/payments"
	"github.com/dukamoja/pos-backend/internal/reconcile"
	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakePaymentsRepo struct {
	byCheckout map[string]*models.PaymentTransaction
	byReceipt  map[string]*models.PaymentTransaction
	created    []*models.PaymentTransaction
	saved      []*models.PaymentTransaction
	createErr  error
}

func newFakePaymentsRepo(txns ...*models.PaymentTransaction) *fakePaymentsRepo {
	repo := &fakePaymentsRepo{
		byCheckout: map[string]*models.PaymentTransaction{},
		byReceipt:  map[string]*models.PaymentTransaction{},
	}
	for _, txn := range txns {
		repo.index(txn)
	}
	return repo
}

func (f *fakePaymentsRepo) index(txn *models.PaymentTransaction) {
	if txn.CheckoutRequestID != nil {
		f.byCheckout[*txn.CheckoutRequestID] = txn
	}
	if txn.MpesaReceiptNumber != nil {
		f.byReceipt[*txn.MpesaReceiptNumber] = txn
	}
}

func (f *fakePaymentsRepo) WithTx(tx *gorm.DB) payments.Repository { return f }

func (f *fakePaymentsRepo) Create(ctx context.Context, txn *models.PaymentTransaction) error {
	if f.createErr != nil {
		return f.createErr
	}
	txn.ID = uuid.New()
	f.created = append(f.created, txn)
	f.index(txn)
	return nil
}

func (f *fakePaymentsRepo) Save(ctx context.Context, txn *models.PaymentTransaction) error {
	f.saved = append(f.saved, txn)
	f.index(txn)
	return nil
}

func (f *fakePaymentsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentTransaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
}

func (f *fakePaymentsRepo) FindByCheckoutRequestID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	if txn, ok := f.byCheckout[id]; ok {
		copied := *txn
		return &copied, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
}

func (f *fakePaymentsRepo) FindByReceiptNumber(ctx context.Context, receipt string) (*models.PaymentTransaction, error) {
	if txn, ok := f.byReceipt[receipt]; ok {
		copied := *txn
		return &copied, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment transaction not found")
}

func (f *fakePaymentsRepo) FindRecentUnsolicited(ctx context.Context, branchID uuid.UUID, since time.Time) ([]models.PaymentTransaction, error) {
	return nil, nil
}

type fakeRecorder struct {
	entries []audit.Entry
}

func (f *fakeRecorder) Record(ctx context.Context, entry audit.Entry) {
	f.entries = append(f.entries, entry)
}

func (f *fakeRecorder) RecordWithTx(ctx context.Context, tx *gorm.DB, entry audit.Entry) {
	f.entries = append(f.entries, entry)
}

type fakeMatcher struct {
	calls []*models.PaymentTransaction
	err   error
}

func (f *fakeMatcher) Match(ctx context.Context, txn *models.PaymentTransaction) (*reconcile.Result, error) {
	f.calls = append(f.calls, txn)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Result{}, nil
}

func pendingPush(checkoutID string) *models.PaymentTransaction {
	id := checkoutID
	actor := uuid.New()
	return &models.PaymentTransaction{
		ID:                uuid.New(),
		CheckoutRequestID: &id,
		PhoneNumber:       "254712345678",
		Amount:            decimal.NewFromInt(1500),
		Status:            enums.PaymentStatusPending,
		BranchID:          uuid.New(),
		InitiatedBy:       &actor,
	}
}

func newCallbackService(t *testing.T, repo payments.Repository, rec audit.Recorder, matcher Matcher) *CallbackService {
	t.Helper()
	svc, err := NewCallbackService(CallbackServiceParams{
		Payments: repo,
		Tx:       fakeTxRunner{},
		Audit:    rec,
		Guard:    NewGuard(nil, nil),
		Matcher:  matcher,
	})
	require.NoError(t, err)
	return svc
}

func successfulCallback(checkoutID string) *StkCallback {
	amount := decimal.NewFromInt(1500)
	ts := time.Date(2026, 8, 1, 10, 21, 15, 0, nairobiTZ)
	return &StkCallback{
		CheckoutRequestID: checkoutID,
		ResultCode:        0,
		ResultDesc:        "The service request is processed successfully.",
		Amount:            &amount,
		ReceiptNumber:     "NLJ7RT61SV",
		PhoneNumber:       "254712345678",
		TransactionDate:   &ts,
	}
}

func TestProcessCompletesPendingTransaction(t *testing.T) {
	txn := pendingPush("ws_CO_1")
	repo := newFakePaymentsRepo(txn)
	recorder := &fakeRecorder{}
	matcher := &fakeMatcher{}
	svc := newCallbackService(t, repo, recorder, matcher)

	err := svc.Process(context.Background(), successfulCallback("ws_CO_1"))
	require.NoError(t, err)

	require.Len(t, repo.saved, 1)
	applied := repo.saved[0]
	assert.Equal(t, enums.PaymentStatusCompleted, applied.Status)
	require.NotNil(t, applied.MpesaReceiptNumber)
	assert.Equal(t, "NLJ7RT61SV", *applied.MpesaReceiptNumber)
	require.NotNil(t, applied.ResultCode)
	assert.Equal(t, 0, *applied.ResultCode)
	assert.NotNil(t, applied.CompletedAt)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, audit.ActionCallbackCompleted, recorder.entries[0].Action)

	require.Len(t, matcher.calls, 1)
	assert.Equal(t, enums.PaymentStatusCompleted, matcher.calls[0].Status)
}

func TestProcessFailsCancelledTransaction(t *testing.T) {
	txn := pendingPush("ws_CO_2")
	repo := newFakePaymentsRepo(txn)
	recorder := &fakeRecorder{}
	matcher := &fakeMatcher{}
	svc := newCallbackService(t, repo, recorder, matcher)

	err := svc.Process(context.Background(), &StkCallback{
		CheckoutRequestID: "ws_CO_2",
		ResultCode:        1032,
		ResultDesc:        "Request cancelled by user.",
	})
	require.NoError(t, err)

	require.Len(t, repo.saved, 1)
	applied := repo.saved[0]
	assert.Equal(t, enums.PaymentStatusFailed, applied.Status)
	require.NotNil(t, applied.ResultCode)
	assert.Equal(t, 1032, *applied.ResultCode)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, audit.ActionCallbackFailed, recorder.entries[0].Action)
	assert.Empty(t, matcher.calls, "failed pushes are never reconciled")
}

func TestProcessRedeliveryIsIdempotent(t *testing.T) {
	txn := pendingPush("ws_CO_3")
	repo := newFakePaymentsRepo(txn)
	recorder := &fakeRecorder{}
	svc := newCallbackService(t, repo, recorder, &fakeMatcher{})

	cb := successfulCallback("ws_CO_3")
	require.NoError(t, svc.Process(context.Background(), cb))
	require.NoError(t, svc.Process(context.Background(), cb))

	// The second delivery must not write anything.
	assert.Len(t, repo.saved, 1)
	assert.Len(t, recorder.entries, 1)
}

func TestProcessUnmatchedCallbackIsAbsorbed(t *testing.T) {
	repo := newFakePaymentsRepo()
	recorder := &fakeRecorder{}
	svc := newCallbackService(t, repo, recorder, &fakeMatcher{})

	err := svc.Process(context.Background(), successfulCallback("ws_CO_unknown"))
	require.NoError(t, err, "unknown callbacks are logged, never retried")
	assert.Empty(t, repo.saved)
	assert.Empty(t, recorder.entries)
}

func TestProcessMatcherFailureDoesNotFailDelivery(t *testing.T) {
	txn := pendingPush("ws_CO_4")
	repo := newFakePaymentsRepo(txn)
	matcher := &fakeMatcher{err: pkgerrors.New(pkgerrors.CodeInternal, "boom")}
	svc := newCallbackService(t, repo, &fakeRecorder{}, matcher)

	err := svc.Process(context.Background(), successfulCallback("ws_CO_4"))
	require.NoError(t, err)
	assert.Len(t, repo.saved, 1)
}

func TestProcessOverridesAmountFromGateway(t *testing.T) {
	txn := pendingPush("ws_CO_5")
	repo := newFakePaymentsRepo(txn)
	svc := newCallbackService(t, repo, &fakeRecorder{}, &fakeMatcher{})

	cb := successfulCallback("ws_CO_5")
	gatewayAmount := decimal.NewFromInt(1400)
	cb.Amount = &gatewayAmount

	require.NoError(t, svc.Process(context.Background(), cb))
	require.Len(t, repo.saved, 1)
	assert.Equal(t, "1400", repo.saved[0].Amount.String())
}
