package esewa

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// Field is one name/value pair of a canonical message.
type Field struct {
	Name  string
	Value string
}

// canonical joins fields as name1=value1,name2=value2 in the given order.
func canonical(fields []Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

func mac(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Sign returns the base64 HMAC-SHA256 of the canonical message built from fields.
func Sign(fields []Field, secret string) string {
	return mac(canonical(fields), secret)
}

// SignedFieldNames is the csv of field names in signing order.
func SignedFieldNames(fields []Field) string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return strings.Join(names, ",")
}

// Verify rebuilds the canonical message in the order declared by the counterparty
// and compares the HMAC in constant time. A field named in signedFieldNames but
// absent from response fails verification.
func Verify(signedFieldNames string, response map[string]string, signature, secret string) bool {
	names := strings.Split(signedFieldNames, ",")
	fields := make([]Field, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return false
		}
		v, ok := response[n]
		if !ok {
			return false
		}
		fields = append(fields, Field{Name: n, Value: v})
	}
	expected := Sign(fields, secret)
	// ConstantTimeCompare returns 0 on length mismatch without inspecting content.
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
