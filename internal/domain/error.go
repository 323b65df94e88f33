package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrUnauthenticated      = errors.New("authentication required")
	ErrRateLimited          = errors.New("too many requests")
	ErrSubscriptionConflict = errors.New("an active subscription already covers this plan")
	ErrNotPurchasable       = errors.New("combination is not purchasable")
	ErrMisconfigured        = errors.New("payment gateway is not configured")

	// Storage errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")
)

// NotPurchasable reasons.
const (
	ReasonFree       = "free"
	ReasonEnterprise = "enterprise"
	ReasonInvalid    = "invalid"
)

// NotPurchasableError explains why a tier/column pair has no price.
type NotPurchasableError struct {
	Reason string
}

func (e *NotPurchasableError) Error() string {
	return fmt.Sprintf("not purchasable: %s", e.Reason)
}

func (e *NotPurchasableError) Is(target error) bool {
	if target == ErrNotPurchasable {
		return true
	}
	return e.Reason == ReasonInvalid && target == ErrInvalidArgument
}

// SubscriptionConflictError carries the plan that blocks a purchase and when it lapses.
type SubscriptionConflictError struct {
	PlanID    string
	ExpiresAt time.Time
}

func (e *SubscriptionConflictError) Error() string {
	return fmt.Sprintf("active %s subscription until %s", e.PlanID, e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *SubscriptionConflictError) Is(target error) bool {
	return target == ErrSubscriptionConflict
}
