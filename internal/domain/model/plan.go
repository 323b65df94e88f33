package model

import (
	"time"

	"orafinite-billing/internal/domain"
)

// PlanID identifies a purchasable plan.
type PlanID string

const (
	PlanFree    PlanID = "free"
	PlanStarter PlanID = "starter"
	PlanPro     PlanID = "pro"
)

// Rank orders plans so upgrades can be told apart from repurchases.
func (p PlanID) Rank() int {
	switch p {
	case PlanStarter:
		return 1
	case PlanPro:
		return 2
	default:
		return 0
	}
}

func (p PlanID) Valid() bool {
	return p == PlanStarter || p == PlanPro
}

// Column is the feature-set axis of the price table.
type Column string

const (
	ColumnGuard Column = "guard"
	ColumnFull  Column = "full"
)

func ParseColumn(s string) (Column, bool) {
	switch Column(s) {
	case ColumnGuard, ColumnFull:
		return Column(s), true
	}
	return "", false
}

// MaxTier is the highest tier index; it is always sold through sales contact.
const MaxTier = 8

// PricePoint is a resolved, server-side price. Amounts are whole NPR.
type PricePoint struct {
	Amount    int64  `json:"amount"`
	PlanID    PlanID `json:"planId"`
	TierLabel string `json:"tierLabel"`
}

// SubscriptionPeriod is the length of a gateway-originated activation.
const SubscriptionPeriod = 30 * 24 * time.Hour

var tierLabels = [MaxTier + 1]string{
	"10K", "25K", "50K", "100K", "250K", "500K", "1M", "2.5M", "Custom",
}

// priceTable holds the monthly NPR price per tier; zero means no entry.
var priceTable = map[Column][MaxTier + 1]int64{
	ColumnGuard: {0, 1500, 2500, 3900, 6900, 11900, 19900, 34900, 0},
	ColumnFull:  {2900, 3900, 4900, 6900, 9900, 15900, 24900, 44900, 0},
}

var columnPlans = map[Column]PlanID{
	ColumnGuard: PlanStarter,
	ColumnFull:  PlanPro,
}

// Resolve returns the server-side price for a tier/column pair.
// Callers never supply an amount; this table is the only source of truth.
func Resolve(tierIndex int, column Column) (PricePoint, error) {
	prices, ok := priceTable[column]
	if !ok || tierIndex < 0 || tierIndex > MaxTier {
		return PricePoint{}, &domain.NotPurchasableError{Reason: domain.ReasonInvalid}
	}
	if tierIndex == MaxTier {
		return PricePoint{}, &domain.NotPurchasableError{Reason: domain.ReasonEnterprise}
	}
	amount := prices[tierIndex]
	if amount <= 0 {
		return PricePoint{}, &domain.NotPurchasableError{Reason: domain.ReasonFree}
	}
	return PricePoint{
		Amount:    amount,
		PlanID:    columnPlans[column],
		TierLabel: tierLabels[tierIndex],
	}, nil
}
