// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/domain/ports/repository"
	"orafinite-billing/internal/infra/logging"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// RecentPaymentsLimit is how many payments the billing history returns.
const RecentPaymentsLimit = 20

type PaymentUseCase interface {
	// Initiate creates a pending payment for the resolved price and returns the signed gateway form.
	Initiate(ctx context.Context, userID string, tierIndex int, column model.Column) (*InitiateResult, error)
	// SweepExpired moves up to limit stale pending payments to expired.
	SweepExpired(ctx context.Context, limit int) (int64, error)
	// ListPayments returns the user's most recent payments, newest first.
	ListPayments(ctx context.Context, userID string) ([]*model.Payment, error)
}

// InitiateResult is what the browser needs to post to the gateway.
// Price is echoed for display only.
type InitiateResult struct {
	Payment *model.Payment
	Price   model.PricePoint
	Form    adapter.PaymentForm
}

type paymentUC struct {
	payments repository.PaymentRepository
	subs     repository.SubscriptionRepository
	gateway  adapter.PaymentGateway
	limiter  adapter.RateLimiter
	log      *zerolog.Logger
	opts     options
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	gateway adapter.PaymentGateway,
	limiter adapter.RateLimiter,
	logger *zerolog.Logger,
	opts ...Option,
) *paymentUC {
	l := logger.With().Str("component", "PaymentUC").Logger()
	return &paymentUC{
		payments: payments,
		subs:     subs,
		gateway:  gateway,
		limiter:  limiter,
		log:      &l,
		opts:     buildOptions(opts),
	}
}

func (u *paymentUC) Initiate(ctx context.Context, userID string, tierIndex int, column model.Column) (*InitiateResult, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	log := logging.With(logging.WithUserID(ctx, userID), u.log)

	// 1. throttle
	allowed, err := u.limiter.Allow(ctx, userID)
	if err != nil {
		// The limiter is a secondary control; a broken store must not block payments.
		log.Warn().Err(err).Msg("rate limiter unavailable, admitting request")
	} else if !allowed {
		return nil, domain.ErrRateLimited
	}

	// 2. price comes from the server table only
	price, err := model.Resolve(tierIndex, column)
	if err != nil {
		return nil, err
	}

	now := u.opts.now()

	// 3. block repurchase of an equal or lower plan while one is active
	sub, err := u.subs.FindByUser(ctx, nil, userID)
	switch {
	case err == nil:
		if sub.ActiveAt(now) && sub.PlanID.Rank() >= price.PlanID.Rank() {
			return nil, &domain.SubscriptionConflictError{PlanID: string(sub.PlanID), ExpiresAt: sub.CurrentPeriodEnd}
		}
	case errors.Is(err, domain.ErrNotFound):
	default:
		log.Error().Err(err).Msg("load subscription failed")
		return nil, domain.ErrOperationFailed
	}

	// 4. best-effort hygiene
	if n, err := u.payments.ExpirePendingForUser(ctx, nil, userID, now.Add(-model.PendingPaymentTTL)); err != nil {
		log.Warn().Err(err).Msg("expire stale pending payments failed")
	} else if n > 0 {
		log.Debug().Int64("expired", n).Msg("expired stale pending payments")
	}

	// 5. fresh CSPRNG correlation key and the signed form
	txnUUID, err := uuid.NewRandom()
	if err != nil {
		log.Error().Err(err).Msg("generate transaction uuid failed")
		return nil, domain.ErrOperationFailed
	}
	const taxAmount = 0
	total := price.Amount + taxAmount
	form, err := u.gateway.BuildForm(txnUUID.String(), price.Amount, taxAmount, total)
	if err != nil {
		log.Error().Err(err).Msg("build gateway form failed")
		return nil, domain.ErrMisconfigured
	}

	// 6. persist
	p := &model.Payment{
		ID:              u.opts.newID(),
		UserID:          userID,
		TransactionUUID: txnUUID.String(),
		ProductCode:     u.gateway.ProductCode(),
		PlanID:          price.PlanID,
		Amount:          price.Amount,
		TaxAmount:       taxAmount,
		TotalAmount:     total,
		Status:          model.PaymentStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := u.payments.Create(ctx, nil, p); err != nil {
		log.Error().Err(err).Str("transaction_uuid", p.TransactionUUID).Msg("create payment failed")
		return nil, domain.ErrOperationFailed
	}

	log.Info().
		Str("payment_id", p.ID).
		Str("transaction_uuid", p.TransactionUUID).
		Str("plan_id", string(p.PlanID)).
		Int64("total_amount", p.TotalAmount).
		Msg("payment initiated")

	return &InitiateResult{Payment: p, Price: price, Form: form}, nil
}

func (u *paymentUC) SweepExpired(ctx context.Context, limit int) (int64, error) {
	cutoff := u.opts.now().Add(-model.PendingPaymentTTL)
	return u.payments.ExpirePendingBefore(ctx, nil, cutoff, limit)
}

func (u *paymentUC) ListPayments(ctx context.Context, userID string) ([]*model.Payment, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return u.payments.ListByUser(ctx, nil, userID, RecentPaymentsLimit)
}

