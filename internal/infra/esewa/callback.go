package esewa

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"orafinite-billing/internal/domain/ports/adapter"
)

// MaxCallbackDataSize bounds the encoded redirect payload.
const MaxCallbackDataSize = 4096

var requiredCallbackFields = []string{
	"transaction_code",
	"status",
	"total_amount",
	"transaction_uuid",
	"product_code",
	"signed_field_names",
	"signature",
}

// decodeBase64 accepts the standard alphabet with or without padding. Query
// decoding may have turned '+' into ' ', which is restored first.
func decodeBase64(data string) ([]byte, error) {
	data = strings.ReplaceAll(strings.TrimSpace(data), " ", "+")
	if b, err := base64.StdEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(data)
}

// decodeCallback returns every string-valued field of the payload and the decoded JSON.
func decodeCallback(data string) (map[string]string, []byte, error) {
	if data == "" || len(data) > MaxCallbackDataSize {
		return nil, nil, fmt.Errorf("%w: size %d", adapter.ErrCallbackMalformed, len(data))
	}
	raw, err := decodeBase64(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: base64", adapter.ErrCallbackMalformed)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, nil, fmt.Errorf("%w: json", adapter.ErrCallbackMalformed)
	}

	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			fields[k] = s
		}
	}
	for _, name := range requiredCallbackFields {
		if strings.TrimSpace(fields[name]) == "" {
			return nil, nil, fmt.Errorf("%w: missing %s", adapter.ErrCallbackMalformed, name)
		}
	}
	return fields, raw, nil
}

func payloadFrom(fields map[string]string, raw []byte) *adapter.CallbackPayload {
	return &adapter.CallbackPayload{
		TransactionCode: fields["transaction_code"],
		Status:          fields["status"],
		TotalAmount:     fields["total_amount"],
		TransactionUUID: fields["transaction_uuid"],
		ProductCode:     fields["product_code"],
		Raw:             raw,
	}
}
