package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukamoja/pos-backend/api/middleware"
	"github.com/dukamoja/pos-backend/internal/payments"
	"github.com/dukamoja/pos-backend/internal/verify"
	"github.com/dukamoja/pos-backend/pkg/enums"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

type fakePaymentsService struct {
	pushInput  *payments.InitiatePushInput
	pushResult *payments.PushResult
	pushErr    error
	statusRes  *payments.StatusResult
	statusErr  error
	pollResult *payments.PollResult
	pollRef    string
	pollAmount *decimal.Decimal
}

func (f *fakePaymentsService) InitiatePush(ctx context.Context, input payments.InitiatePushInput) (*payments.PushResult, error) {
	f.pushInput = &input
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	return f.pushResult, nil
}

func (f *fakePaymentsService) PushStatus(ctx context.Context, id string) (*payments.StatusResult, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusRes, nil
}

func (f *fakePaymentsService) PollDeposits(ctx context.Context, branchID uuid.UUID, reference string, amount *decimal.Decimal) (*payments.PollResult, error) {
	f.pollRef = reference
	f.pollAmount = amount
	return f.pollResult, nil
}

type fakeVerifyService struct {
	input    *verify.Input
	evidence *verify.Evidence
	err      error
}

func (f *fakeVerifyService) VerifyReceipt(ctx context.Context, input verify.Input) (*verify.Evidence, error) {
	f.input = &input
	if f.err != nil {
		return nil, f.err
	}
	return f.evidence, nil
}

func staffContext(r *http.Request, userID, branchID uuid.UUID, role enums.StaffRole) *http.Request {
	ctx := middleware.WithUserID(r.Context(), userID)
	ctx = middleware.WithRole(ctx, role)
	ctx = middleware.WithBranchID(ctx, branchID)
	return r.WithContext(ctx)
}

func TestPaymentsPushAccepted(t *testing.T) {
	svc := &fakePaymentsService{pushResult: &payments.PushResult{
		TransactionID:     uuid.New(),
		CheckoutRequestID: "ws_CO_1",
		State:             payments.PushStatePending,
	}}
	handler := PaymentsPush(svc, nil)

	userID := uuid.New()
	branchID := uuid.New()
	body := `{"phone_number":"0712345678","amount":"1500","account_reference":"TILL-4"}`
	req := staffContext(
		httptest.NewRequest(http.MethodPost, "/payments/push", strings.NewReader(body)),
		userID, branchID, enums.StaffRoleCashier,
	)

	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, svc.pushInput)
	assert.Equal(t, "0712345678", svc.pushInput.PhoneNumber)
	assert.Equal(t, "1500", svc.pushInput.Amount.String())
	assert.Equal(t, branchID, svc.pushInput.BranchID)
	assert.Equal(t, userID, svc.pushInput.InitiatedBy)

	var envelope struct {
		Data payments.PushResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "ws_CO_1", envelope.Data.CheckoutRequestID)
}

func TestPaymentsPushRejectsBadBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing phone", `{"amount":"1500"}`},
		{"missing amount", `{"phone_number":"0712345678"}`},
		{"non numeric amount", `{"phone_number":"0712345678","amount":"abc"}`},
		{"unknown field", `{"phone_number":"0712345678","amount":"1500","extra":true}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakePaymentsService{}
			handler := PaymentsPush(svc, nil)

			req := staffContext(
				httptest.NewRequest(http.MethodPost, "/payments/push", strings.NewReader(tc.body)),
				uuid.New(), uuid.New(), enums.StaffRoleCashier,
			)
			rec := httptest.NewRecorder()
			handler(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, svc.pushInput)
		})
	}
}

func TestPaymentsPushGatewayFailureStatus(t *testing.T) {
	svc := &fakePaymentsService{pushErr: pkgerrors.New(pkgerrors.CodeTimeout, "gateway timed out")}
	handler := PaymentsPush(svc, nil)

	req := staffContext(
		httptest.NewRequest(http.MethodPost, "/payments/push",
			strings.NewReader(`{"phone_number":"0712345678","amount":"1500"}`)),
		uuid.New(), uuid.New(), enums.StaffRoleCashier,
	)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Contains(t, rec.Body.String(), "payment service unavailable")
}

func TestPaymentsPollDepositsParsesQuery(t *testing.T) {
	svc := &fakePaymentsService{pollResult: &payments.PollResult{Found: false}}
	handler := PaymentsPollDeposits(svc, nil)

	req := staffContext(
		httptest.NewRequest(http.MethodGet, "/payments/deposits?amount=1500&reference=TILL-4", nil),
		uuid.New(), uuid.New(), enums.StaffRoleCashier,
	)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.pollAmount)
	assert.Equal(t, "1500", svc.pollAmount.String())
	assert.Equal(t, "TILL-4", svc.pollRef)
	assert.Contains(t, rec.Body.String(), `"found":false`)
}

func TestPaymentsVerifyReceiptPassesActor(t *testing.T) {
	svc := &fakeVerifyService{evidence: &verify.Evidence{ReceiptNumber: "NLJ7RT61SV"}}
	handler := PaymentsVerifyReceipt(svc, nil)

	userID := uuid.New()
	branchID := uuid.New()
	req := staffContext(
		httptest.NewRequest(http.MethodPost, "/payments/verify-receipt",
			strings.NewReader(`{"receipt_number":"NLJ7RT61SV","amount":"1500"}`)),
		userID, branchID, enums.StaffRoleManager,
	)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.input)
	assert.Equal(t, userID, svc.input.ActorID)
	assert.Equal(t, branchID, svc.input.BranchID)
	assert.Equal(t, enums.StaffRoleManager, svc.input.ActorRole)
}

func TestPaymentsVerifyReceiptMismatchStatus(t *testing.T) {
	svc := &fakeVerifyService{err: pkgerrors.New(pkgerrors.CodeAmountMismatch, "receipt amount 1500 does not match expected 1400")}
	handler := PaymentsVerifyReceipt(svc, nil)

	req := staffContext(
		httptest.NewRequest(http.MethodPost, "/payments/verify-receipt",
			strings.NewReader(`{"receipt_number":"NLJ7RT61SV","amount":"1400"}`)),
		uuid.New(), uuid.New(), enums.StaffRoleManager,
	)
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "1400")
}
