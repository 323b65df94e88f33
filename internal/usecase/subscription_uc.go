// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/repository"
)

var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Current returns the user's subscription, or nil when the user never paid.
	Current(ctx context.Context, userID string) (*SubscriptionView, error)
	// FinishExpired marks active subscriptions whose period has ended as expired.
	FinishExpired(ctx context.Context) (int64, error)
}

// SubscriptionView is the billing read model; Active is computed at read time.
type SubscriptionView struct {
	Subscription *model.Subscription
	Active       bool
}

type subscriptionUC struct {
	subs repository.SubscriptionRepository
	log  *zerolog.Logger
	opts options
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, logger *zerolog.Logger, opts ...Option) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, log: &l, opts: buildOptions(opts)}
}

func (u *subscriptionUC) Current(ctx context.Context, userID string) (*SubscriptionView, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	s, err := u.subs.FindByUser(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &SubscriptionView{Subscription: s, Active: s.ActiveAt(u.opts.now())}, nil
}

func (u *subscriptionUC) FinishExpired(ctx context.Context) (int64, error) {
	n, err := u.subs.ExpireLapsed(ctx, nil, u.opts.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		u.log.Info().Int64("count", n).Msg("subscriptions lapsed")
	}
	return n, nil
}
