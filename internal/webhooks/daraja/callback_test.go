package daraja

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/dukamoja/pos-backend/pkg/errors"
)

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const cancelledCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user."
    }
  }
}`

func TestParseCallbackSuccess(t *testing.T) {
	cb, err := ParseCallback([]byte(successCallback))
	require.NoError(t, err)

	assert.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	assert.Equal(t, 0, cb.ResultCode)
	assert.Equal(t, "NLJ7RT61SV", cb.ReceiptNumber)
	assert.Equal(t, "254708374149", cb.PhoneNumber)

	require.NotNil(t, cb.Amount)
	assert.Equal(t, "1500", cb.Amount.String())

	require.NotNil(t, cb.TransactionDate)
	want := time.Date(2019, 12, 19, 10, 21, 15, 0, nairobiTZ)
	assert.True(t, cb.TransactionDate.Equal(want))
}

func TestParseCallbackCancellation(t *testing.T) {
	cb, err := ParseCallback([]byte(cancelledCallback))
	require.NoError(t, err)

	assert.Equal(t, 1032, cb.ResultCode)
	assert.Empty(t, cb.ReceiptNumber)
	assert.Nil(t, cb.Amount)
}

func TestParseCallbackRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"Body": `},
		{"empty object", `{}`},
		{"missing checkout id", `{"Body":{"stkCallback":{"ResultCode":0}}}`},
		{
			"missing merchant request id",
			`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1",
				"ResultCode":1032,"ResultDesc":"Request cancelled by user."}}}`,
		},
		{
			// Without the presence check this would decode as ResultCode 0
			// and read as a paid transaction.
			"missing result code",
			`{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1",
				"ResultDesc":"The service request is processed successfully.",
				"CallbackMetadata":{"Item":[
					{"Name":"Amount","Value":1500},
					{"Name":"MpesaReceiptNumber","Value":"QAB123XYZ"}
				]}}}}`,
		},
		{
			"missing result desc",
			`{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1",
				"ResultCode":1032}}}`,
		},
		{
			"success without receipt",
			`{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1",
				"ResultCode":0,"ResultDesc":"The service request is processed successfully.",
				"CallbackMetadata":{"Item":[{"Name":"Amount","Value":100}]}}}}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseCallback([]byte(tc.raw))
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestParseCallbackQuotedMetadataValues(t *testing.T) {
	raw := `{"Body":{"stkCallback":{"MerchantRequestID":"29115-1","CheckoutRequestID":"ws_CO_1",
		"ResultCode":0,"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":"250"},
			{"Name":"MpesaReceiptNumber","Value":"nlj7rt61sv"},
			{"Name":"PhoneNumber","Value":"254708374149"}
		]}}}}`

	cb, err := ParseCallback([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "250", cb.Amount.String())
	// Receipts are stored uppercase regardless of wire casing.
	assert.Equal(t, "NLJ7RT61SV", cb.ReceiptNumber)
}
