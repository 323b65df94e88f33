package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/infra/logging"
	"orafinite-billing/internal/infra/metrics"
)

// retryAfterSeconds matches the initiation rate-limit window.
const retryAfterSeconds = "60"

type errorBody struct {
	Code        string            `json:"code"`
	Error       string            `json:"error"`
	Reason      string            `json:"reason,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	CurrentPlan string            `json:"currentPlan,omitempty"`
	ExpiresAt   *time.Time        `json:"expiresAt,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to responses. Anything unmapped is logged and
// sanitized to a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	var np *domain.NotPurchasableError
	var conflict *domain.SubscriptionConflictError
	switch {
	case errors.As(err, &np):
		metrics.IncInitiateRejected("not_purchasable")
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "not_purchasable", Error: notPurchasableMessage(np.Reason), Reason: np.Reason})
	case errors.As(err, &conflict):
		metrics.IncInitiateRejected("conflict")
		exp := conflict.ExpiresAt.UTC()
		writeJSON(w, http.StatusConflict, errorBody{
			Code:        "subscription_conflict",
			Error:       "an active subscription already covers this plan",
			CurrentPlan: conflict.PlanID,
			ExpiresAt:   &exp,
		})
	case errors.Is(err, domain.ErrInvalidArgument):
		metrics.IncInitiateRejected("invalid")
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "invalid_argument", Error: "invalid request"})
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Error: "sign in required"})
	case errors.Is(err, domain.ErrRateLimited):
		metrics.IncInitiateRejected("rate_limited")
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSON(w, http.StatusTooManyRequests, errorBody{Code: "rate_limited", Error: "too many payment attempts, try again in a minute"})
	default:
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "internal", Error: "payment service unavailable"})
	}
}

func notPurchasableMessage(reason string) string {
	switch reason {
	case domain.ReasonFree:
		return "this tier is free and needs no payment"
	case domain.ReasonEnterprise:
		return "this tier is sold through sales, please contact us"
	}
	return "unknown tier or plan column"
}
