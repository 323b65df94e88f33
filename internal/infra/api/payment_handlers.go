package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/infra/logging"
	"orafinite-billing/internal/infra/metrics"
	"orafinite-billing/internal/usecase"
)

const (
	maxInitiateBody = 4 << 10
	billingPath     = "/dashboard/billing"
	loginPath       = "/login"
	revenueCurrency = "NPR"
)

type initiateRequest struct {
	TierIndex *int   `json:"tierIndex" validate:"required,min=0,max=8"`
	Column    string `json:"column" validate:"required"`
}

type initiateResponse struct {
	PaymentID       string            `json:"paymentId"`
	TransactionUUID string            `json:"transactionUuid"`
	ResolvedPrice   model.PricePoint  `json:"resolvedPrice"`
	FormData        map[string]string `json:"formData"`
	PaymentURL      string            `json:"paymentUrl"`
}

func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInitiateBody))
	if err := dec.Decode(&req); err != nil {
		metrics.IncInitiateRejected("invalid")
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_body", Error: "request body must be JSON with tierIndex and column"})
		return
	}
	if err := s.validate.Struct(req); err != nil {
		metrics.IncInitiateRejected("invalid")
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Error: "invalid tier or column", Fields: fieldErrors(err)})
		return
	}

	column, ok := model.ParseColumn(req.Column)
	if !ok {
		metrics.IncInitiateRejected("invalid")
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Error: "invalid tier or column", Fields: map[string]string{"column": "oneof"}})
		return
	}

	res, err := s.payments.Initiate(r.Context(), sessionUser(r.Context()), *req.TierIndex, column)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	metrics.IncPayment(string(model.PaymentStatusPending))
	writeJSON(w, http.StatusOK, initiateResponse{
		PaymentID:       res.Payment.ID,
		TransactionUUID: res.Payment.TransactionUUID,
		ResolvedPrice:   res.Price,
		FormData:        res.Form.Fields,
		PaymentURL:      res.Form.PaymentURL,
	})
}

// handleVerify is the gateway success_url.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.verifyAndRedirect(w, r, r.URL.Query().Get("data"))
}

// handleFailure is the gateway failure_url. The gateway does not always attach
// a payload there; without one the user simply abandoned the checkout.
func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	if data == "" {
		l := logging.With(r.Context(), s.log)
		l.Info().Msg("gateway failure redirect without payload")
		http.Redirect(w, r, s.redirectURL(sessionUser(r.Context()) != "", usecase.OutcomeFailed, usecase.ReasonNone), http.StatusSeeOther)
		return
	}
	s.verifyAndRedirect(w, r, data)
}

func (s *Server) verifyAndRedirect(w http.ResponseWriter, r *http.Request, data string) {
	start := time.Now()
	uid := sessionUser(r.Context())
	res, err := s.callbacks.Verify(r.Context(), usecase.CallbackInput{Data: data, SessionUserID: uid})
	if res == nil {
		res = &usecase.CallbackResult{Outcome: usecase.OutcomeError, Reason: usecase.ReasonInternal}
	}
	if err != nil {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("payment_id", res.PaymentID).Msg("callback processing failed")
	}
	recordCallback(res, time.Since(start))
	http.Redirect(w, r, s.redirectURL(uid != "", res.Outcome, res.Reason), http.StatusSeeOther)
}

// redirectURL never carries upstream text: only the bounded outcome and reason.
func (s *Server) redirectURL(hasSession bool, outcome usecase.CallbackOutcome, reason usecase.CallbackReason) string {
	q := url.Values{}
	q.Set("payment", string(outcome))
	if reason != usecase.ReasonNone {
		q.Set("reason", string(reason))
	}
	path := billingPath
	if !hasSession {
		path = loginPath
	}
	return s.gateway.AppURL(path, q)
}

func recordCallback(res *usecase.CallbackResult, elapsed time.Duration) {
	metrics.ObserveVerify(string(res.Outcome), string(res.Reason), elapsed)
	if res.SecurityEvent != "" {
		metrics.IncSecurityEvent(res.SecurityEvent)
	}
	if res.StatusCheck != "" {
		metrics.IncStatusCheck(res.StatusCheck)
	}
	switch {
	case res.Activated:
		metrics.IncPayment(string(model.PaymentStatusCompleted))
		metrics.AddPaymentRevenue(revenueCurrency, res.TotalAmount)
		metrics.IncSubscriptionActivated(string(res.PlanID))
	case res.Reason == usecase.ReasonExpired:
		metrics.IncPayment(string(model.PaymentStatusExpired))
	case res.Reason == usecase.ReasonDeclined,
		res.Reason == usecase.ReasonVerification && res.PaymentID != "":
		metrics.IncPayment(string(model.PaymentStatusFailed))
	}
}

