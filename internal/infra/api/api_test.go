//go:build !integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/infra/api"
	"orafinite-billing/internal/infra/esewa"
	"orafinite-billing/internal/usecase"
)

const testSecret = "session-secret"

// ---------------- fakes ----------------

type fakePayments struct {
	InitiateFunc func(ctx context.Context, userID string, tierIndex int, column model.Column) (*usecase.InitiateResult, error)
	list         []*model.Payment
}

func (f *fakePayments) Initiate(ctx context.Context, userID string, tierIndex int, column model.Column) (*usecase.InitiateResult, error) {
	if f.InitiateFunc != nil {
		return f.InitiateFunc(ctx, userID, tierIndex, column)
	}
	price, err := model.Resolve(tierIndex, column)
	if err != nil {
		return nil, err
	}
	return &usecase.InitiateResult{
		Payment: &model.Payment{ID: "pay-1", UserID: userID, TransactionUUID: "txn-1", TotalAmount: price.Amount},
		Price:   price,
		Form:    adapter.PaymentForm{Fields: map[string]string{"transaction_uuid": "txn-1", "signature": "sig"}, PaymentURL: "https://rc-epay.esewa.com.np/api/epay/main/v2/form"},
	}, nil
}

func (f *fakePayments) SweepExpired(ctx context.Context, limit int) (int64, error) { return 0, nil }

func (f *fakePayments) ListPayments(ctx context.Context, userID string) ([]*model.Payment, error) {
	return f.list, nil
}

type fakeCallbacks struct {
	mu     sync.Mutex
	inputs []usecase.CallbackInput
	result *usecase.CallbackResult
	err    error
}

func (f *fakeCallbacks) Verify(ctx context.Context, in usecase.CallbackInput) (*usecase.CallbackResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.result == nil {
		return &usecase.CallbackResult{Outcome: usecase.OutcomeSuccess, Activated: true, PlanID: model.PlanPro, TotalAmount: 6900}, f.err
	}
	return f.result, f.err
}

func (f *fakeCallbacks) calls() []usecase.CallbackInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usecase.CallbackInput(nil), f.inputs...)
}

type fakeSubscriptions struct {
	view *usecase.SubscriptionView
	err  error
}

func (f *fakeSubscriptions) Current(ctx context.Context, userID string) (*usecase.SubscriptionView, error) {
	return f.view, f.err
}

func (f *fakeSubscriptions) FinishExpired(ctx context.Context) (int64, error) { return 0, nil }

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

// ---------------- harness ----------------

type harness struct {
	payments  *fakePayments
	callbacks *fakeCallbacks
	subs      *fakeSubscriptions
	sessions  *api.Sessions
	checks    map[string]api.Pinger
}

func newHarness() *harness {
	return &harness{
		payments:  &fakePayments{},
		callbacks: &fakeCallbacks{},
		subs:      &fakeSubscriptions{},
		sessions:  api.NewSessions(testSecret, "session"),
		checks:    map[string]api.Pinger{"postgres": pinger{}},
	}
}

func (h *harness) handler(t *testing.T) http.Handler {
	t.Helper()
	cfg, err := esewa.NewConfig(esewa.SandboxProductCode, esewa.SandboxSecretKey, "sandbox", "https://app.example.com", time.Second)
	if err != nil {
		t.Fatalf("esewa config: %v", err)
	}
	logger := zerolog.Nop()
	return api.NewServer(api.Deps{
		Payments:      h.payments,
		Callbacks:     h.callbacks,
		Subscriptions: h.subs,
		Sessions:      h.sessions,
		Gateway:       cfg,
		Checks:        h.checks,
		Logger:        &logger,
	}).Routes()
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := h.sessions.Mint(userID, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return tok
}

func initiateRequest(body, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/payments/esewa/initiate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

// ---------------- tests ----------------

func TestInitiate(t *testing.T) {
	t.Run("should return the signed form and echo the resolved price", func(t *testing.T) {
		h := newHarness()
		var gotUser string
		h.payments.InitiateFunc = func(ctx context.Context, userID string, tierIndex int, column model.Column) (*usecase.InitiateResult, error) {
			gotUser = userID
			return (&fakePayments{}).Initiate(ctx, userID, tierIndex, column)
		}
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, initiateRequest(`{"tierIndex":3,"column":"full"}`, h.token(t, "user-1")))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if gotUser != "user-1" {
			t.Errorf("expected the session user, got %q", gotUser)
		}
		body := decode(t, rec)
		price, _ := body["resolvedPrice"].(map[string]any)
		if price["amount"] != float64(6900) || price["planId"] != "pro" {
			t.Errorf("expected 6900 pro, got %v", price)
		}
		if body["paymentId"] != "pay-1" || body["transactionUuid"] != "txn-1" || body["paymentUrl"] == "" {
			t.Errorf("unexpected body %v", body)
		}
		if _, ok := body["formData"].(map[string]any)["signature"]; !ok {
			t.Errorf("expected form data with signature, got %v", body["formData"])
		}
		if rec.Header().Get("X-Trace-Id") == "" {
			t.Error("expected a trace id header")
		}
	})

	t.Run("should accept the session cookie", func(t *testing.T) {
		h := newHarness()
		req := initiateRequest(`{"tierIndex":1,"column":"guard"}`, "")
		req.AddCookie(&http.Cookie{Name: "session", Value: h.token(t, "user-1")})
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("should require a valid session", func(t *testing.T) {
		h := newHarness()
		forged, _ := api.NewSessions("other-secret", "session").Mint("user-1", time.Hour)
		expired, _ := h.sessions.Mint("user-1", -time.Minute)
		for name, tok := range map[string]string{"none": "", "forged": forged, "expired": expired} {
			rec := httptest.NewRecorder()
			h.handler(t).ServeHTTP(rec, initiateRequest(`{"tierIndex":3,"column":"full"}`, tok))
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("%s: expected 401, got %d", name, rec.Code)
			}
		}
	})

	cases := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{"tierIndex":`, "invalid_body"},
		{"missing tier", `{"column":"full"}`, "invalid_argument"},
		{"unknown column", `{"tierIndex":2,"column":"bundle"}`, "invalid_argument"},
		{"upper-case column", `{"tierIndex":2,"column":"FULL"}`, "invalid_argument"},
		{"tier out of range", `{"tierIndex":9,"column":"full"}`, "invalid_argument"},
		{"free tier", `{"tierIndex":0,"column":"guard"}`, "not_purchasable"},
		{"enterprise tier", `{"tierIndex":8,"column":"full"}`, "not_purchasable"},
	}
	for _, tc := range cases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			h := newHarness()
			rec := httptest.NewRecorder()

			h.handler(t).ServeHTTP(rec, initiateRequest(tc.body, h.token(t, "user-1")))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decode(t, rec)["code"]; got != tc.code {
				t.Errorf("expected code %s, got %v", tc.code, got)
			}
		})
	}

	t.Run("should explain a blocking subscription", func(t *testing.T) {
		h := newHarness()
		exp := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
		h.payments.InitiateFunc = func(ctx context.Context, userID string, tierIndex int, column model.Column) (*usecase.InitiateResult, error) {
			return nil, &domain.SubscriptionConflictError{PlanID: "pro", ExpiresAt: exp}
		}
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, initiateRequest(`{"tierIndex":3,"column":"full"}`, h.token(t, "user-1")))

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		body := decode(t, rec)
		if body["currentPlan"] != "pro" || body["expiresAt"] != "2025-06-01T00:00:00Z" {
			t.Errorf("expected plan and expiry, got %v", body)
		}
	})

	t.Run("should throttle with retry guidance", func(t *testing.T) {
		h := newHarness()
		h.payments.InitiateFunc = func(ctx context.Context, userID string, tierIndex int, column model.Column) (*usecase.InitiateResult, error) {
			return nil, domain.ErrRateLimited
		}
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, initiateRequest(`{"tierIndex":3,"column":"full"}`, h.token(t, "user-1")))

		if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") != "60" {
			t.Errorf("expected 429 with Retry-After, got %d %q", rec.Code, rec.Header().Get("Retry-After"))
		}
	})

	t.Run("should not leak internal error text", func(t *testing.T) {
		h := newHarness()
		h.payments.InitiateFunc = func(ctx context.Context, userID string, tierIndex int, column model.Column) (*usecase.InitiateResult, error) {
			return nil, errors.New("esewa: secret key is required")
		}
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, initiateRequest(`{"tierIndex":3,"column":"full"}`, h.token(t, "user-1")))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "secret") {
			t.Errorf("expected a sanitized message, got %s", rec.Body.String())
		}
	})
}

func TestCallbackRedirects(t *testing.T) {
	get := func(t *testing.T, h *harness, target, token string) *httptest.ResponseRecorder {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if token != "" {
			req.AddCookie(&http.Cookie{Name: "session", Value: token})
		}
		rec := httptest.NewRecorder()
		h.handler(t).ServeHTTP(rec, req)
		return rec
	}
	location := func(t *testing.T, rec *httptest.ResponseRecorder) *url.URL {
		t.Helper()
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("expected 303, got %d", rec.Code)
		}
		u, err := url.Parse(rec.Header().Get("Location"))
		if err != nil {
			t.Fatalf("bad location: %v", err)
		}
		return u
	}

	t.Run("should send a signed-in user to the billing view", func(t *testing.T) {
		h := newHarness()
		rec := get(t, h, esewa.VerifyPath+"?data=abc%2Bdef", h.token(t, "user-1"))

		u := location(t, rec)
		if u.Host != "app.example.com" || u.Path != "/dashboard/billing" || u.Query().Get("payment") != "success" {
			t.Errorf("unexpected redirect %s", u)
		}
		calls := h.callbacks.calls()
		if len(calls) != 1 || calls[0].SessionUserID != "user-1" || calls[0].Data != "abc+def" {
			t.Errorf("expected data and session passed through, got %+v", calls)
		}
	})

	t.Run("should send a user whose session expired to login", func(t *testing.T) {
		h := newHarness()
		rec := get(t, h, esewa.VerifyPath+"?data=abc", "")

		u := location(t, rec)
		if u.Path != "/login" || u.Query().Get("payment") != "success" {
			t.Errorf("unexpected redirect %s", u)
		}
		if h.callbacks.calls()[0].SessionUserID != "" {
			t.Error("expected no session user")
		}
	})

	t.Run("should carry only the bounded reason", func(t *testing.T) {
		h := newHarness()
		h.callbacks.result = &usecase.CallbackResult{Outcome: usecase.OutcomeFailed, Reason: usecase.ReasonVerification, SecurityEvent: usecase.SecuritySignature}
		rec := get(t, h, esewa.VerifyPath+"?data=abc", h.token(t, "user-1"))

		q := location(t, rec).Query()
		if q.Get("payment") != "failed" || q.Get("reason") != "verification" || len(q) != 2 {
			t.Errorf("unexpected query %v", q)
		}
	})

	t.Run("should redirect with error on internal failure", func(t *testing.T) {
		h := newHarness()
		h.callbacks.result = &usecase.CallbackResult{Outcome: usecase.OutcomeError, Reason: usecase.ReasonInternal}
		h.callbacks.err = domain.ErrOperationFailed
		rec := get(t, h, esewa.VerifyPath+"?data=abc", h.token(t, "user-1"))

		if got := location(t, rec).Query().Get("payment"); got != "error" {
			t.Errorf("expected payment=error, got %s", got)
		}
	})

	t.Run("should treat a bare failure redirect as abandoned", func(t *testing.T) {
		h := newHarness()
		rec := get(t, h, esewa.FailurePath, h.token(t, "user-1"))

		if got := location(t, rec).Query().Get("payment"); got != "failed" {
			t.Errorf("expected payment=failed, got %s", got)
		}
		if len(h.callbacks.calls()) != 0 {
			t.Error("expected no verification without a payload")
		}
	})

	t.Run("should verify a failure redirect that carries a payload", func(t *testing.T) {
		h := newHarness()
		h.callbacks.result = &usecase.CallbackResult{Outcome: usecase.OutcomeFailed, Reason: usecase.ReasonDeclined}
		rec := get(t, h, esewa.FailurePath+"?data=abc", h.token(t, "user-1"))

		if got := location(t, rec).Query().Get("reason"); got != "declined" {
			t.Errorf("expected reason=declined, got %s", got)
		}
		if len(h.callbacks.calls()) != 1 {
			t.Error("expected the payload verified")
		}
	})
}

func TestBilling(t *testing.T) {
	t.Run("should report the free plan for a user who never paid", func(t *testing.T) {
		h := newHarness()
		req := httptest.NewRequest(http.MethodGet, "/api/billing/subscription", nil)
		req.Header.Set("Authorization", "Bearer "+h.token(t, "user-1"))
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, req)

		body := decode(t, rec)
		if rec.Code != http.StatusOK || body["planId"] != "free" || body["active"] != false {
			t.Errorf("unexpected response %d %v", rec.Code, body)
		}
	})

	t.Run("should report the current subscription", func(t *testing.T) {
		h := newHarness()
		end := time.Now().Add(24 * time.Hour)
		h.subs.view = &usecase.SubscriptionView{
			Subscription: &model.Subscription{PlanID: model.PlanPro, Status: model.SubscriptionStatusActive, CurrentPeriodEnd: end},
			Active:       true,
		}
		req := httptest.NewRequest(http.MethodGet, "/api/billing/subscription", nil)
		req.Header.Set("Authorization", "Bearer "+h.token(t, "user-1"))
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, req)

		body := decode(t, rec)
		if body["planId"] != "pro" || body["active"] != true || body["currentPeriodEnd"] == nil {
			t.Errorf("unexpected response %v", body)
		}
	})

	t.Run("should list payments without the audit payload", func(t *testing.T) {
		h := newHarness()
		h.payments.list = []*model.Payment{{
			ID: "pay-1", TransactionUUID: "txn-1", PlanID: model.PlanPro, TotalAmount: 6900,
			Status: model.PaymentStatusFailed, EsewaRawPayload: []byte(`{"reason":"amount_mismatch"}`),
		}}
		req := httptest.NewRequest(http.MethodGet, "/api/billing/payments", nil)
		req.Header.Set("Authorization", "Bearer "+h.token(t, "user-1"))
		rec := httptest.NewRecorder()

		h.handler(t).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "amount_mismatch") {
			t.Errorf("expected no audit payload, got %s", rec.Body.String())
		}
		payments, _ := decode(t, rec)["payments"].([]any)
		if len(payments) != 1 {
			t.Errorf("expected one payment, got %v", payments)
		}
	})

	t.Run("should require a session", func(t *testing.T) {
		h := newHarness()
		rec := httptest.NewRecorder()
		h.handler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/billing/payments", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	t.Run("should be ok when dependencies answer", func(t *testing.T) {
		h := newHarness()
		rec := httptest.NewRecorder()
		h.handler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK || decode(t, rec)["postgres"] != "up" {
			t.Errorf("unexpected health %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("should report a failing dependency without details", func(t *testing.T) {
		h := newHarness()
		h.checks["redis"] = pinger{err: errors.New("dial tcp 10.0.0.3:6379: refused")}
		rec := httptest.NewRecorder()
		h.handler(t).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable || decode(t, rec)["redis"] != "down" {
			t.Errorf("unexpected health %d %s", rec.Code, rec.Body.String())
		}
		if strings.Contains(rec.Body.String(), "10.0.0.3") {
			t.Error("expected no error detail in the body")
		}
	})
}
