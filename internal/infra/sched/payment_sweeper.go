package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"orafinite-billing/internal/infra/metrics"
	"orafinite-billing/internal/usecase"
)

const (
	sweepLockKey  = "billing:lock:payment-sweep"
	sweepBatchMax = 500
)

// PaymentSweeper periodically moves pending payments past their window to expired,
// so abandoned checkouts do not stay pending forever when no callback arrives.
type PaymentSweeper struct {
	uc       usecase.PaymentUseCase
	locker   Locker
	interval time.Duration
	batch    int
	log      *zerolog.Logger
}

func NewPaymentSweeper(uc usecase.PaymentUseCase, locker Locker, interval time.Duration, logger *zerolog.Logger) *PaymentSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "PaymentSweeper").Logger()
	return &PaymentSweeper{uc: uc, locker: locker, interval: interval, batch: sweepBatchMax, log: &l}
}

func (w *PaymentSweeper) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment sweeper")
	err := every(ctx, w.interval, w.Tick)
	w.log.Info().Msg("Stopping payment sweeper")
	return err
}

// Tick runs one sweep. Batches repeat until a short batch shows the backlog is drained.
func (w *PaymentSweeper) Tick(ctx context.Context) {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, sweepLockKey, w.interval)
		if err != nil {
			w.log.Debug().Err(err).Msg("sweep skipped, lock not acquired")
			return
		}
		defer func() {
			if err := w.locker.Unlock(context.Background(), sweepLockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("sweep lock release failed")
			}
		}()
	}

	var total int64
	for ctx.Err() == nil {
		n, err := w.uc.SweepExpired(ctx, w.batch)
		if err != nil {
			w.log.Error().Err(err).Msg("payment sweep error")
			break
		}
		total += n
		if n < int64(w.batch) {
			break
		}
	}
	if total > 0 {
		metrics.AddPaymentsSwept(total)
		w.log.Info().Int64("count", total).Msg("stale pending payments expired")
	}
}
