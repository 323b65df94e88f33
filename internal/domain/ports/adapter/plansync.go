package adapter

import (
	"context"

	"orafinite-billing/internal/domain/model"
)

// PlanSyncer propagates a plan change to records this service does not own.
// Delivery is best-effort; failures never roll back the subscription.
type PlanSyncer interface {
	SyncPlan(ctx context.Context, change model.PlanChange) error
}
