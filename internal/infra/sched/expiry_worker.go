package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"orafinite-billing/internal/infra/metrics"
	"orafinite-billing/internal/usecase"
)

const expiryLockKey = "billing:lock:subscription-expiry"

// ExpiryWorker periodically finishes expired subscriptions via the use case.
type ExpiryWorker struct {
	interval time.Duration
	subUC    usecase.SubscriptionUseCase
	locker   Locker
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, subUC usecase.SubscriptionUseCase, locker Locker, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		subUC:    subUC,
		locker:   locker,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	err := every(ctx, w.interval, w.Tick)
	w.log.Info().Msg("Stopping expiry worker")
	return err
}

func (w *ExpiryWorker) Tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, expiryLockKey, w.interval)
		if err != nil {
			return
		}
		defer func() { _ = w.locker.Unlock(context.Background(), expiryLockKey, token) }()
	}
	n, err := w.subUC.FinishExpired(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("expiry worker error")
		return
	}
	if n > 0 {
		metrics.IncSubscriptionsExpired(n)
		w.log.Info().Int64("count", n).Msg("expired subscriptions finished")
	}
}
