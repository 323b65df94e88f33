package api

import (
	"net/http"
	"time"

	"orafinite-billing/internal/domain/model"
)

type subscriptionResponse struct {
	PlanID             model.PlanID `json:"planId"`
	Status             string       `json:"status"`
	Active             bool         `json:"active"`
	CurrentPeriodStart *time.Time   `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time   `json:"currentPeriodEnd,omitempty"`
	AutoRenew          bool         `json:"autoRenew"`
}

func (s *Server) handleSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := s.subscriptions.Current(r.Context(), sessionUser(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if view == nil {
		writeJSON(w, http.StatusOK, subscriptionResponse{PlanID: model.PlanFree, Status: "none"})
		return
	}
	sub := view.Subscription
	start, end := sub.CurrentPeriodStart.UTC(), sub.CurrentPeriodEnd.UTC()
	writeJSON(w, http.StatusOK, subscriptionResponse{
		PlanID:             sub.PlanID,
		Status:             string(sub.Status),
		Active:             view.Active,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		AutoRenew:          sub.AutoRenew,
	})
}

// paymentResponse is the history row; the audit payload stays server-side.
type paymentResponse struct {
	ID              string       `json:"id"`
	TransactionUUID string       `json:"transactionUuid"`
	PlanID          model.PlanID `json:"planId"`
	Amount          int64        `json:"amount"`
	TaxAmount       int64        `json:"taxAmount"`
	TotalAmount     int64        `json:"totalAmount"`
	Status          string       `json:"status"`
	RefID           *string      `json:"refId,omitempty"`
	PeriodStart     *time.Time   `json:"periodStart,omitempty"`
	PeriodEnd       *time.Time   `json:"periodEnd,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

func (s *Server) handlePayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.payments.ListPayments(r.Context(), sessionUser(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]paymentResponse, 0, len(list))
	for _, p := range list {
		out = append(out, paymentResponse{
			ID:              p.ID,
			TransactionUUID: p.TransactionUUID,
			PlanID:          p.PlanID,
			Amount:          p.Amount,
			TaxAmount:       p.TaxAmount,
			TotalAmount:     p.TotalAmount,
			Status:          string(p.Status),
			RefID:           p.EsewaRefID,
			PeriodStart:     p.PeriodStart,
			PeriodEnd:       p.PeriodEnd,
			CreatedAt:       p.CreatedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": out})
}
