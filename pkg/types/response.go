package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// GatewayAck is the fixed envelope returned to the payment gateway for every
// webhook delivery, regardless of internal outcome. Anything other than this
// body triggers gateway-side retry storms.
type GatewayAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// AcceptedAck is the only ack the gateway ever sees.
func AcceptedAck() GatewayAck {
	return GatewayAck{ResultCode: 0, ResultDesc: "Accepted"}
}
