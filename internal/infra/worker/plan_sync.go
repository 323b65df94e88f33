package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/infra/logging"
	"orafinite-billing/internal/infra/metrics"
)

var _ adapter.PlanSyncer = (*PlanSyncDispatcher)(nil)

const defaultSyncBackoff = 500 * time.Millisecond

// PlanSyncDispatcher hands plan changes to the pool and retries the downstream
// write with exponential backoff. SyncPlan returns once the job is queued, so
// the caller's request is never held by the downstream tables.
type PlanSyncDispatcher struct {
	pool     *Pool
	target   adapter.PlanSyncer
	attempts int
	backoff  time.Duration
	log      *zerolog.Logger
}

func NewPlanSyncDispatcher(pool *Pool, target adapter.PlanSyncer, attempts int, backoff time.Duration, logger *zerolog.Logger) *PlanSyncDispatcher {
	if attempts <= 0 {
		attempts = 1
	}
	if backoff <= 0 {
		backoff = defaultSyncBackoff
	}
	l := logger.With().Str("component", "PlanSyncDispatcher").Logger()
	return &PlanSyncDispatcher{pool: pool, target: target, attempts: attempts, backoff: backoff, log: &l}
}

func (d *PlanSyncDispatcher) SyncPlan(ctx context.Context, change model.PlanChange) error {
	traceID := logging.TraceIDFrom(ctx)
	err := d.pool.Submit(func(ctx context.Context) error {
		ctx = logging.WithUserID(logging.WithTraceID(ctx, traceID), change.UserID)
		return d.deliver(ctx, change)
	})
	if err != nil {
		metrics.IncPlanSync("dropped")
		return fmt.Errorf("queue plan sync: %w", err)
	}
	return nil
}

func (d *PlanSyncDispatcher) deliver(ctx context.Context, change model.PlanChange) error {
	log := logging.With(ctx, d.log)
	wait := d.backoff
	var err error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		if err = d.target.SyncPlan(ctx, change); err == nil {
			metrics.IncPlanSync("synced")
			log.Info().Str("plan_id", string(change.PlanID)).Int("attempt", attempt).Msg("plan synced")
			return nil
		}
		if attempt == d.attempts {
			break
		}
		metrics.IncPlanSync("retried")
		log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("plan sync failed, retrying")
		select {
		case <-ctx.Done():
			metrics.IncPlanSync("failed")
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	metrics.IncPlanSync("failed")
	log.Error().Err(err).Str("payment_id", change.PaymentID).Str("plan_id", string(change.PlanID)).
		Msg("plan sync gave up; organization and API key plans are stale")
	return err
}
