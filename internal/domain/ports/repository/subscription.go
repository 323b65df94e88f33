package repository

import (
	"context"
	"time"

	"orafinite-billing/internal/domain/model"
)

// SubscriptionRepository is the port for user subscriptions.
type SubscriptionRepository interface {
	// FindByUser returns the user's single subscription row or domain.ErrNotFound.
	FindByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	// Upsert creates the user's subscription or replaces plan, status and period in place.
	Upsert(ctx context.Context, tx Tx, s *model.Subscription) error
	// ExpireLapsed marks active subscriptions whose period ended before now as expired.
	ExpireLapsed(ctx context.Context, tx Tx, now time.Time) (int64, error)
}
