package model

import (
	"time"

	"orafinite-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
)

// Subscription is the user's entitlement; at most one row per user.
type Subscription struct {
	ID                 string
	UserID             string
	PlanID             PlanID
	Status             SubscriptionStatus
	CurrentPaymentID   string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	AutoRenew          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ActiveAt reports whether the subscription grants its plan at now.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.CurrentPeriodEnd.After(now)
}

// Activate applies a completed payment to the subscription, creating one when s is nil.
// The period always starts at the verification time and lasts SubscriptionPeriod.
func Activate(s *Subscription, id string, p *Payment, now time.Time) (*Subscription, error) {
	if p == nil || p.UserID == "" || !p.PlanID.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	var out Subscription
	if s != nil {
		out = *s
	} else {
		out = Subscription{ID: id, UserID: p.UserID, CreatedAt: now}
	}
	out.PlanID = p.PlanID
	out.Status = SubscriptionStatusActive
	out.CurrentPaymentID = p.ID
	out.CurrentPeriodStart = now
	out.CurrentPeriodEnd = now.Add(SubscriptionPeriod)
	out.UpdatedAt = now
	return &out, nil
}

// PlanChange is the outbound command propagating a new plan to records
// owned by another service (organizations, API keys).
type PlanChange struct {
	UserID    string
	PlanID    PlanID
	PaymentID string
	PeriodEnd time.Time
}
