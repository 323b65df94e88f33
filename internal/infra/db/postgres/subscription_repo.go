package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	q := `SELECT id, user_id, plan_id, status, current_payment_id, current_period_start, current_period_end, auto_renew, created_at, updated_at
FROM subscription WHERE user_id=$1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}

	s := &model.Subscription{}
	var paymentID *string
	if err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Status, &paymentID, &s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.AutoRenew, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if paymentID != nil {
		s.CurrentPaymentID = *paymentID
	}
	return s, nil
}

// Upsert keys on user_id so concurrent activations for one user converge on one row.
func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if s == nil || s.ID == "" || s.UserID == "" {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO subscription (
  id, user_id, plan_id, status, current_payment_id, current_period_start, current_period_end, auto_renew, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (user_id) DO UPDATE SET
  plan_id = EXCLUDED.plan_id,
  status = EXCLUDED.status,
  current_payment_id = EXCLUDED.current_payment_id,
  current_period_start = EXCLUDED.current_period_start,
  current_period_end = EXCLUDED.current_period_end,
  auto_renew = EXCLUDED.auto_renew,
  updated_at = EXCLUDED.updated_at;`

	var paymentID *string
	if s.CurrentPaymentID != "" {
		paymentID = &s.CurrentPaymentID
	}
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, string(s.PlanID), string(s.Status), paymentID,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.AutoRenew, s.CreatedAt, s.UpdatedAt)
	return mapError(err)
}

func (r *subscriptionRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	const q = `UPDATE subscription SET status='expired', updated_at=NOW() WHERE status='active' AND current_period_end <= $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, now)
	if err != nil {
		return 0, mapError(err)
	}
	return cmd.RowsAffected(), nil
}
