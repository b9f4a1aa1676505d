package daraja

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukamoja/pos-backend/internal/audit"
	"github.com/dukamoja/pos-backend/pkg/db/models"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

type fakeBranchesRepo struct {
	branch *models.Branch
	err    error
}

func (f *fakeBranchesRepo) DefaultActive(ctx context.Context) (*models.Branch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.branch, nil
}

func tillDeposit() *C2BConfirmation {
	return &C2BConfirmation{
		TransactionType:   "Pay Bill",
		TransID:           "NLJ7RT61SV",
		TransTime:         "20260801102115",
		TransAmount:       "1500.00",
		BusinessShortCode: "174379",
		BillRefNumber:     "TILL-4",
		MSISDN:            "254712345678",
		FirstName:         "WANJIKU",
	}
}

func newC2BService(t *testing.T, repo *fakePaymentsRepo, branch *models.Branch, rec audit.Recorder, matcher Matcher) *C2BService {
	t.Helper()
	svc, err := NewC2BService(C2BServiceParams{
		Payments: repo,
		Branches: &fakeBranchesRepo{branch: branch},
		Audit:    rec,
		Guard:    NewGuard(nil, nil),
		Matcher:  matcher,
	})
	require.NoError(t, err)
	return svc
}

func defaultBranch() *models.Branch {
	return &models.Branch{ID: uuid.New(), Name: "Main", Active: true, IsDefault: true}
}

func TestConfirmRecordsCompletedDeposit(t *testing.T) {
	repo := newFakePaymentsRepo()
	branch := defaultBranch()
	recorder := &fakeRecorder{}
	matcher := &fakeMatcher{}
	svc := newC2BService(t, repo, branch, recorder, matcher)

	require.NoError(t, svc.Confirm(context.Background(), tillDeposit()))

	require.Len(t, repo.created, 1)
	txn := repo.created[0]
	assert.Equal(t, enums.PaymentStatusCompleted, txn.Status)
	assert.Equal(t, branch.ID, txn.BranchID)
	assert.Equal(t, "1500", txn.Amount.String())
	assert.Equal(t, "254712345678", txn.PhoneNumber)
	assert.Nil(t, txn.CheckoutRequestID, "till deposits are unsolicited")
	assert.Nil(t, txn.InitiatedBy)
	require.NotNil(t, txn.MpesaReceiptNumber)
	assert.Equal(t, "NLJ7RT61SV", *txn.MpesaReceiptNumber)

	require.NotNil(t, txn.TransactionDate)
	want := time.Date(2026, 8, 1, 10, 21, 15, 0, nairobiTZ)
	assert.True(t, txn.TransactionDate.Equal(want))

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, audit.ActionTillDeposit, entry.Action)
	assert.Equal(t, models.SystemActorID, entry.ActorID)

	require.Len(t, matcher.calls, 1)
}

func TestConfirmDuplicateTransIDIsNoOp(t *testing.T) {
	repo := newFakePaymentsRepo()
	recorder := &fakeRecorder{}
	svc := newC2BService(t, repo, defaultBranch(), recorder, &fakeMatcher{})

	deposit := tillDeposit()
	require.NoError(t, svc.Confirm(context.Background(), deposit))
	require.NoError(t, svc.Confirm(context.Background(), deposit))

	assert.Len(t, repo.created, 1)
	assert.Len(t, recorder.entries, 1)
}

func TestConfirmHashedMSISDNIsStoredAsIs(t *testing.T) {
	repo := newFakePaymentsRepo()
	svc := newC2BService(t, repo, defaultBranch(), &fakeRecorder{}, &fakeMatcher{})

	deposit := tillDeposit()
	deposit.MSISDN = "a1b2c3d4e5f6a1b2c3d4e5f6"

	require.NoError(t, svc.Confirm(context.Background(), deposit))
	require.Len(t, repo.created, 1)
	assert.Equal(t, "a1b2c3d4e5f6a1b2c3d4e5f6", repo.created[0].PhoneNumber)
}

func TestConfirmRejectsBrokenPayloads(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*C2BConfirmation)
	}{
		{"missing trans id", func(c *C2BConfirmation) { c.TransID = "" }},
		{"non-numeric amount", func(c *C2BConfirmation) { c.TransAmount = "abc" }},
		{"zero amount", func(c *C2BConfirmation) { c.TransAmount = "0" }},
		{"missing msisdn", func(c *C2BConfirmation) { c.MSISDN = "" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newFakePaymentsRepo()
			svc := newC2BService(t, repo, defaultBranch(), &fakeRecorder{}, &fakeMatcher{})

			deposit := tillDeposit()
			tc.mutate(deposit)

			err := svc.Confirm(context.Background(), deposit)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
			assert.Empty(t, repo.created)
		})
	}
}

func TestConfirmMatcherFailureStillRecords(t *testing.T) {
	repo := newFakePaymentsRepo()
	matcher := &fakeMatcher{err: pkgerrors.New(pkgerrors.CodeInternal, "boom")}
	svc := newC2BService(t, repo, defaultBranch(), &fakeRecorder{}, matcher)

	require.NoError(t, svc.Confirm(context.Background(), tillDeposit()))
	assert.Len(t, repo.created, 1)
}

func TestValidateAcceptsWellFormedDeposit(t *testing.T) {
	svc := newC2BService(t, newFakePaymentsRepo(), defaultBranch(), &fakeRecorder{}, &fakeMatcher{})
	assert.NoError(t, svc.Validate(context.Background(), tillDeposit()))
}

func TestValidateRejectsBadAmount(t *testing.T) {
	svc := newC2BService(t, newFakePaymentsRepo(), defaultBranch(), &fakeRecorder{}, &fakeMatcher{})

	deposit := tillDeposit()
	deposit.TransAmount = "-10"
	assert.Error(t, svc.Validate(context.Background(), deposit))
}
