//go:build !integration

package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"orafinite-billing/internal/config"
)

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "debug", Format: "json"}, false, &buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithTransactionUUID(ctx, "txn-1")

	With(ctx, base).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-1"`, `"user_id":"user-1"`, `"transaction_uuid":"txn-1"`, `"message":"hello"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
	if TraceIDFrom(ctx) != "trace-1" {
		t.Errorf("expected trace id to round trip, got %q", TraceIDFrom(ctx))
	}
}

func TestWith_OmitsMissingFields(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "info", Format: "json"}, false, &buf)

	With(context.Background(), base).Info().Msg("bare")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("expected no trace_id, got %s", buf.String())
	}
}

func TestRedact(t *testing.T) {
	cases := []struct {
		in   string
		dev  bool
		want string
	}{
		{"8gBm/:&EnhH.1/q", true, "8gBm/:&EnhH.1/q"},
		{"8gBm/:&EnhH.1/q", false, "8gBm.../q"},
		{"short", false, "***"},
	}
	for _, tc := range cases {
		if got := Redact(tc.in, tc.dev); got != tc.want {
			t.Errorf("Redact(%q, %v) = %q, want %q", tc.in, tc.dev, got, tc.want)
		}
	}
}
