package daraja

import (
	"context"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

// StkPushParams describe a merchant-initiated payment prompt. The phone
// number must already be canonicalized.
type StkPushParams struct {
	PhoneNumber      string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

// StkPushResult carries the gateway's correlation ids for an accepted prompt.
type StkPushResult struct {
	MerchantRequestID string
	CheckoutRequestID string
	CustomerMessage   string
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// StkPush asks the gateway to prompt the customer's phone for the amount.
// A non-zero ResponseCode surfaces as GATEWAY_REJECTED with the gateway's
// description; retry policy belongs to the caller.
func (c *Client) StkPush(ctx context.Context, params StkPushParams) (*StkPushResult, error) {
	ts := c.timestamp()
	req := stkPushRequest{
		BusinessShortCode: c.shortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            params.Amount.String(),
		PartyA:            params.PhoneNumber,
		PartyB:            c.shortCode,
		PhoneNumber:       params.PhoneNumber,
		CallBackURL:       c.callbackURL,
		AccountReference:  params.AccountReference,
		TransactionDesc:   params.Description,
	}

	c.log(ctx, "request", "stk_push", map[string]any{
		"amount":            params.Amount.String(),
		"account_reference": params.AccountReference,
	})

	var resp stkPushResponse
	if err := c.postJSON(ctx, stkPushPath, req, &resp); err != nil {
		return nil, err
	}

	if resp.ResponseCode != "0" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayRejected, resp.ResponseDescription).
			WithDetails(map[string]any{"response_code": resp.ResponseCode})
	}

	c.log(ctx, "response", "stk_push", map[string]any{
		"checkout_request_id": resp.CheckoutRequestID,
	})

	return &StkPushResult{
		MerchantRequestID: resp.MerchantRequestID,
		CheckoutRequestID: resp.CheckoutRequestID,
		CustomerMessage:   resp.CustomerMessage,
	}, nil
}

// StatusQueryResult reports the gateway-side state of a push request.
type StatusQueryResult struct {
	ResultCode string
	ResultDesc string
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// QueryStatus asks the gateway for the current result of a push request.
func (c *Client) QueryStatus(ctx context.Context, checkoutRequestID string) (*StatusQueryResult, error) {
	if checkoutRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout request id is required")
	}

	ts := c.timestamp()
	req := stkQueryRequest{
		BusinessShortCode: c.shortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp stkQueryResponse
	if err := c.postJSON(ctx, stkQueryPath, req, &resp); err != nil {
		return nil, err
	}

	if resp.ResponseCode != "0" {
		return nil, pkgerrors.New(pkgerrors.CodeGatewayRejected, resp.ResponseDescription).
			WithDetails(map[string]any{"response_code": resp.ResponseCode})
	}

	return &StatusQueryResult{
		ResultCode: resp.ResultCode,
		ResultDesc: resp.ResultDesc,
	}, nil
}

func (c *Client) log(ctx context.Context, phase, operation string, fields map[string]any) {
	if c.logger == nil {
		return
	}
	merged := map[string]any{"gateway_op": operation, "phase": phase}
	for k, v := range fields {
		merged[k] = v
	}
	ctx = c.logger.WithFields(ctx, merged)
	c.logger.Info(ctx, "daraja."+operation)
}
