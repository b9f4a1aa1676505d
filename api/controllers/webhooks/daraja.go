package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dukamoja/pos-backend/api/responses"
	darajahooks "github.com/dukamoja/pos-backend/internal/webhooks/daraja"
	"github.com/dukamoja/pos-backend/pkg/logger"
)

// Gateway payloads are small; anything bigger is not a callback.
const maxWebhookBody = 1 << 20

// CallbackProcessor applies STK push results.
type CallbackProcessor interface {
	Process(ctx context.Context, cb *darajahooks.StkCallback) error
}

// C2BProcessor records till deposits.
type C2BProcessor interface {
	Validate(ctx context.Context, conf *darajahooks.C2BConfirmation) error
	Confirm(ctx context.Context, conf *darajahooks.C2BConfirmation) error
}

// StkCallback receives push results from the gateway. The response is always
// the fixed acceptance body with HTTP 200: a non-200 or a different body puts
// the delivery into the gateway's retry queue, and a broken payload will be
// just as broken on the fifth retry. Internal failures are logged and counted
// instead.
func StkCallback(svc CallbackProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer responses.WriteGatewayAck(w)

		if svc == nil {
			logError(ctx, logg, "webhooks.callback_service_missing", nil)
			return
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			logError(ctx, logg, "webhooks.callback_body_unreadable", err)
			return
		}

		cb, err := darajahooks.ParseCallback(raw)
		if err != nil {
			logError(ctx, logg, "webhooks.callback_unparseable", err)
			return
		}

		if err := svc.Process(ctx, cb); err != nil {
			logError(ctx, logg, "webhooks.callback_processing_failed", err)
		}
	}
}

// C2BValidate is the gateway's pre-payment hook. There are no acceptance
// rules; every deposit is acked. A structurally broken payload is logged so
// operators notice, but the gateway still gets the fixed acceptance body.
func C2BValidate(svc C2BProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer responses.WriteGatewayAck(w)

		conf, err := decodeConfirmation(r)
		if err != nil {
			logError(ctx, logg, "webhooks.c2b_validate_unparseable", err)
			return
		}

		if svc == nil {
			return
		}

		if err := svc.Validate(ctx, conf); err != nil {
			logError(ctx, logg, "webhooks.c2b_validate_failed", err)
		}
	}
}

// C2BConfirm records a deposit that has already moved money. Like the STK
// callback, it always acks.
func C2BConfirm(svc C2BProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		defer responses.WriteGatewayAck(w)

		if svc == nil {
			logError(ctx, logg, "webhooks.c2b_service_missing", nil)
			return
		}

		conf, err := decodeConfirmation(r)
		if err != nil {
			logError(ctx, logg, "webhooks.c2b_confirm_unparseable", err)
			return
		}

		if err := svc.Confirm(ctx, conf); err != nil {
			logError(ctx, logg, "webhooks.c2b_confirm_failed", err)
		}
	}
}

func decodeConfirmation(r *http.Request) (*darajahooks.C2BConfirmation, error) {
	var conf darajahooks.C2BConfirmation
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody))
	if err := decoder.Decode(&conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg != nil {
		logg.Error(ctx, msg, err)
	}
}
