package model

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // created at initiation; awaiting callback
	PaymentStatusCompleted PaymentStatus = "completed" // verified callback, subscription activated
	PaymentStatusFailed    PaymentStatus = "failed"    // declined, tampered or rejected by the gateway
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusExpired   PaymentStatus = "expired" // pending longer than PendingPaymentTTL
)

// Terminal reports whether no further transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentStatusPending
}

// PendingPaymentTTL bounds how long a pending payment may still be completed.
const PendingPaymentTTL = 30 * time.Minute

// Payment is one attempted transaction with the gateway.
type Payment struct {
	ID              string
	UserID          string
	TransactionUUID string // correlation key with the gateway; unique
	ProductCode     string
	PlanID          PlanID
	Amount          int64
	TaxAmount       int64
	TotalAmount     int64
	Status          PaymentStatus
	EsewaRefID      *string
	EsewaRawPayload json.RawMessage // audit payload, set on terminal transition
	PeriodStart     *time.Time
	PeriodEnd       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ExpiredAt reports whether the pending window has elapsed at now.
func (p *Payment) ExpiredAt(now time.Time) bool {
	return now.Sub(p.CreatedAt) > PendingPaymentTTL
}

// PaymentTransition is the payload of a pending -> terminal write.
type PaymentTransition struct {
	Status      PaymentStatus
	RefID       *string
	RawPayload  json.RawMessage
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}
