package esewa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"orafinite-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*Gateway)(nil)

// requestFieldOrder is the order the gateway expects for the signed request fields.
var requestFieldOrder = []string{"total_amount", "transaction_uuid", "product_code"}

const maxStatusBody = 64 << 10

// Gateway implements adapter.PaymentGateway for eSewa ePay v2.
type Gateway struct {
	cfg    Config
	client *http.Client
}

// NewGateway builds a gateway bound to cfg. The HTTP client timeout follows cfg.StatusTimeout.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.StatusTimeout},
	}
}

func (g *Gateway) Name() string { return "esewa" }

func (g *Gateway) ProductCode() string { return g.cfg.ProductCode }

// BuildForm returns the form fields for the gateway. Only server-trusted values are signed.
func (g *Gateway) BuildForm(transactionUUID string, amount, taxAmount, totalAmount int64) (adapter.PaymentForm, error) {
	if transactionUUID == "" || amount <= 0 || taxAmount < 0 || totalAmount != amount+taxAmount {
		return adapter.PaymentForm{}, errors.New("esewa: invalid form amounts")
	}
	values := map[string]string{
		"total_amount":     strconv.FormatInt(totalAmount, 10),
		"transaction_uuid": transactionUUID,
		"product_code":     g.cfg.ProductCode,
	}
	signed := make([]Field, len(requestFieldOrder))
	for i, name := range requestFieldOrder {
		signed[i] = Field{Name: name, Value: values[name]}
	}

	fields := map[string]string{
		"amount":                  strconv.FormatInt(amount, 10),
		"tax_amount":              strconv.FormatInt(taxAmount, 10),
		"product_service_charge":  "0",
		"product_delivery_charge": "0",
		"total_amount":            values["total_amount"],
		"transaction_uuid":        transactionUUID,
		"product_code":            g.cfg.ProductCode,
		"signed_field_names":      SignedFieldNames(signed),
		"signature":               Sign(signed, g.cfg.SecretKey),
		"success_url":             g.cfg.SuccessURL(),
		"failure_url":             g.cfg.FailureURL(),
	}
	return adapter.PaymentForm{Fields: fields, PaymentURL: g.cfg.FormURL}, nil
}

// DecodeCallback decodes the redirect payload, verifies the HMAC over the
// gateway-declared field order, and checks the merchant code. On signature or
// product-code failure the unauthenticated payload is still returned so callers
// can log what was presented.
func (g *Gateway) DecodeCallback(data string) (*adapter.CallbackPayload, error) {
	fields, raw, err := decodeCallback(data)
	if err != nil {
		return nil, err
	}
	p := payloadFrom(fields, raw)
	if !Verify(fields["signed_field_names"], fields, fields["signature"], g.cfg.SecretKey) {
		return p, adapter.ErrSignatureInvalid
	}
	if p.ProductCode != g.cfg.ProductCode {
		return p, adapter.ErrProductCodeMismatch
	}
	return p, nil
}

// statusResponse mirrors the status endpoint body.
// total_amount arrives as a number or a string; it is kept verbatim and never decides the outcome.
type statusResponse struct {
	ProductCode     string          `json:"product_code"`
	TransactionUUID string          `json:"transaction_uuid"`
	TotalAmount     json.RawMessage `json:"total_amount"`
	Status          string          `json:"status"`
	RefID           *string         `json:"ref_id"`
}

// CheckStatus calls the transaction status endpoint.
func (g *Gateway) CheckStatus(ctx context.Context, transactionUUID string, totalAmount int64) (*adapter.TransactionStatus, error) {
	q := url.Values{}
	q.Set("product_code", g.cfg.ProductCode)
	q.Set("total_amount", strconv.FormatInt(totalAmount, 10))
	q.Set("transaction_uuid", transactionUUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.StatusURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", adapter.ErrStatusInconclusive, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", adapter.ErrStatusInconclusive, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", adapter.ErrStatusInconclusive, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d", adapter.ErrStatusInconclusive, resp.StatusCode)
	}

	var sr statusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("%w: decode body", adapter.ErrStatusInconclusive)
	}
	status := adapter.GatewayStatus(sr.Status)
	if !status.Known() {
		return nil, fmt.Errorf("%w: unknown status %q", adapter.ErrStatusInconclusive, sr.Status)
	}
	return &adapter.TransactionStatus{
		ProductCode:     sr.ProductCode,
		TransactionUUID: sr.TransactionUUID,
		TotalAmount:     strings.Trim(string(sr.TotalAmount), `"`),
		Status:          status,
		RefID:           sr.RefID,
		Raw:             body,
	}, nil
}
