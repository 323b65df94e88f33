package adapter

import (
	"context"
	"errors"
)

// GatewayStatus is the transaction state reported by the gateway's status endpoint.
type GatewayStatus string

const (
	GatewayStatusComplete      GatewayStatus = "COMPLETE"
	GatewayStatusPending       GatewayStatus = "PENDING"
	GatewayStatusFullRefund    GatewayStatus = "FULL_REFUND"
	GatewayStatusPartialRefund GatewayStatus = "PARTIAL_REFUND"
	GatewayStatusNotFound      GatewayStatus = "NOT_FOUND"
	GatewayStatusCanceled      GatewayStatus = "CANCELED"
	GatewayStatusAmbiguous     GatewayStatus = "AMBIGUOUS"
)

// Known reports whether s is one of the documented statuses.
func (s GatewayStatus) Known() bool {
	switch s {
	case GatewayStatusComplete, GatewayStatusPending, GatewayStatusFullRefund,
		GatewayStatusPartialRefund, GatewayStatusNotFound, GatewayStatusCanceled,
		GatewayStatusAmbiguous:
		return true
	}
	return false
}

var (
	// ErrCallbackMalformed means the redirect payload could not be decoded into the required fields.
	ErrCallbackMalformed = errors.New("callback payload malformed")
	// ErrSignatureInvalid means the callback HMAC did not verify.
	ErrSignatureInvalid = errors.New("callback signature invalid")
	// ErrProductCodeMismatch means the callback was signed for another merchant.
	ErrProductCodeMismatch = errors.New("callback product code mismatch")
	// ErrStatusInconclusive means the status endpoint could not give an answer (timeout, transport, bad body).
	ErrStatusInconclusive = errors.New("gateway status inconclusive")
)

// PaymentForm is the signed form the browser submits to the gateway.
type PaymentForm struct {
	Fields     map[string]string
	PaymentURL string
}

// CallbackPayload is a decoded, authenticated gateway redirect.
type CallbackPayload struct {
	TransactionCode string
	Status          string
	TotalAmount     string
	TransactionUUID string
	ProductCode     string
	Raw             []byte // decoded JSON, kept for audit
}

// TransactionStatus is the answer of the gateway's status endpoint.
type TransactionStatus struct {
	ProductCode     string
	TransactionUUID string
	TotalAmount     string
	Status          GatewayStatus
	RefID           *string
	Raw             []byte
}

// PaymentGateway is the hex port for the redirect payment provider.
type PaymentGateway interface {
	Name() string
	// ProductCode is the merchant code payments are created under.
	ProductCode() string
	// BuildForm signs the server-trusted fields of a new payment.
	BuildForm(transactionUUID string, amount, taxAmount, totalAmount int64) (PaymentForm, error)
	// DecodeCallback decodes the redirect payload and verifies signature and product code.
	DecodeCallback(data string) (*CallbackPayload, error)
	// CheckStatus queries the gateway for a transaction. Any failure to get an answer wraps ErrStatusInconclusive.
	CheckStatus(ctx context.Context, transactionUUID string, totalAmount int64) (*TransactionStatus, error)
}
