package daraja

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

// Gateway timestamps are wall-clock Nairobi time with no offset in the wire
// format.
var nairobiTZ = time.FixedZone("EAT", 3*60*60)

const gatewayTimeLayout = "20060102150405"

// StkCallback is the parsed, validated result of a push request. ResultCode 0
// means the customer paid; anything else is a failure with the reason in
// ResultDesc.
type StkCallback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string

	// Populated only on success.
	Amount          *decimal.Decimal
	ReceiptNumber   string
	PhoneNumber     string
	TransactionDate *time.Time
}

type callbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        *int   `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []metadataItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type metadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseCallback decodes and validates the gateway's callback payload. The
// envelope shape is strict: all four scalar fields must be present. A
// payload with no ResultCode would otherwise decode as 0 and read as a
// successful payment.
func ParseCallback(raw []byte) (*StkCallback, error) {
	var envelope callbackEnvelope
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&envelope); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed callback payload")
	}

	inner := envelope.Body.StkCallback
	if inner.CheckoutRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing CheckoutRequestID")
	}
	if inner.MerchantRequestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing MerchantRequestID")
	}
	if inner.ResultCode == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing ResultCode")
	}
	if inner.ResultDesc == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "callback missing ResultDesc")
	}

	cb := &StkCallback{
		MerchantRequestID: inner.MerchantRequestID,
		CheckoutRequestID: inner.CheckoutRequestID,
		ResultCode:        *inner.ResultCode,
		ResultDesc:        inner.ResultDesc,
	}

	if cb.ResultCode == 0 {
		if err := cb.applyMetadata(inner.CallbackMetadata.Item); err != nil {
			return nil, err
		}
		if cb.ReceiptNumber == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "successful callback missing MpesaReceiptNumber")
		}
	}

	return cb, nil
}

func (cb *StkCallback) applyMetadata(items []metadataItem) error {
	for _, item := range items {
		switch item.Name {
		case "Amount":
			amount, err := decodeDecimal(item.Value)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "callback Amount is not numeric")
			}
			cb.Amount = &amount
		case "MpesaReceiptNumber":
			cb.ReceiptNumber = strings.ToUpper(decodeString(item.Value))
		case "PhoneNumber":
			cb.PhoneNumber = decodeString(item.Value)
		case "TransactionDate":
			if ts, ok := decodeGatewayTime(item.Value); ok {
				cb.TransactionDate = &ts
			}
		}
	}
	return nil
}

func decodeString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	// Numeric fields (phone, date) arrive unquoted.
	return strings.TrimSpace(strings.Trim(string(raw), `"`))
}

func decodeDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	return decimal.NewFromString(decodeString(raw))
}

func decodeGatewayTime(raw json.RawMessage) (time.Time, bool) {
	value := decodeString(raw)
	ts, err := time.ParseInLocation(gatewayTimeLayout, value, nairobiTZ)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
