package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukamoja/pos-backend/api/middleware"
	"github.com/dukamoja/pos-backend/api/responses"
	"github.com/dukamoja/pos-backend/api/validators"
	"github.com/dukamoja/pos-backend/internal/payments"
	"github.com/dukamoja/pos-backend/internal/verify"
	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
	"github.com/dukamoja/pos-backend/pkg/logger"
)

// PaymentsService is the POS-facing payments surface.
type PaymentsService interface {
	InitiatePush(ctx context.Context, input payments.InitiatePushInput) (*payments.PushResult, error)
	PushStatus(ctx context.Context, checkoutRequestID string) (*payments.StatusResult, error)
	PollDeposits(ctx context.Context, branchID uuid.UUID, reference string, amount *decimal.Decimal) (*payments.PollResult, error)
}

// VerifyService answers manual receipt checks.
type VerifyService interface {
	VerifyReceipt(ctx context.Context, input verify.Input) (*verify.Evidence, error)
}

type pushRequest struct {
	PhoneNumber      string `json:"phone_number" validate:"required"`
	Amount           string `json:"amount" validate:"required"`
	AccountReference string `json:"account_reference" validate:"omitempty,max=12"`
	Description      string `json:"description" validate:"omitempty,max=64"`
}

// PaymentsPush prompts the customer's phone for the sale amount.
func PaymentsPush(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var req pushRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric"))
			return
		}

		result, err := svc.InitiatePush(ctx, payments.InitiatePushInput{
			PhoneNumber:      req.PhoneNumber,
			Amount:           amount,
			AccountReference: req.AccountReference,
			Description:      req.Description,
			BranchID:         middleware.BranchIDFromContext(ctx),
			InitiatedBy:      middleware.UserIDFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, result)
	}
}

// PaymentsPushStatus reports the progress of a push the POS is waiting on.
func PaymentsPushStatus(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		status, err := svc.PushStatus(ctx, chi.URLParam(r, "checkoutRequestId"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, status)
	}
}

// PaymentsPollDeposits tells a waiting checkout whether an unsolicited till
// deposit landed for its branch, optionally narrowed by bill reference and
// amounts near the sale total.
func PaymentsPollDeposits(svc PaymentsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var amount *decimal.Decimal
		if raw := strings.TrimSpace(r.URL.Query().Get("amount")); raw != "" {
			parsed, err := decimal.NewFromString(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric"))
				return
			}
			amount = &parsed
		}

		result, err := svc.PollDeposits(ctx, middleware.BranchIDFromContext(ctx), r.URL.Query().Get("reference"), amount)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

type verifyReceiptRequest struct {
	ReceiptNumber string `json:"receipt_number" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
}

// PaymentsVerifyReceipt checks a hand-entered receipt for a manager or admin.
func PaymentsVerifyReceipt(svc VerifyService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "verification service unavailable"))
			return
		}

		var req verifyReceiptRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be numeric"))
			return
		}

		evidence, err := svc.VerifyReceipt(ctx, verify.Input{
			ReceiptNumber:  req.ReceiptNumber,
			ExpectedAmount: amount,
			BranchID:       middleware.BranchIDFromContext(ctx),
			ActorID:        middleware.UserIDFromContext(ctx),
			ActorRole:      middleware.RoleFromContext(ctx),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, evidence)
	}
}
