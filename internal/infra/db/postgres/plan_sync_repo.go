package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/domain/ports/repository"
)

var _ adapter.PlanSyncer = (*planSyncRepo)(nil)

// planSyncRepo writes a new plan into the organization and api_key tables
// owned by the quota service. Both updates commit together.
type planSyncRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewPlanSyncRepo(pool *pgxpool.Pool) *planSyncRepo {
	return &planSyncRepo{pool: pool, tm: NewTxManager(pool)}
}

func (r *planSyncRepo) SyncPlan(ctx context.Context, change model.PlanChange) error {
	if change.UserID == "" || !change.PlanID.Valid() {
		return domain.ErrInvalidArgument
	}
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const orgQ = `UPDATE organization SET plan=$2, updated_at=NOW() WHERE owner_id=$1 AND plan IS DISTINCT FROM $2;`
		if _, err := execSQL(ctx, r.pool, tx, orgQ, change.UserID, string(change.PlanID)); err != nil {
			return mapError(err)
		}
		const keyQ = `
UPDATE api_key SET plan=$2
 WHERE organization_id IN (SELECT id FROM organization WHERE owner_id=$1)
   AND plan IS DISTINCT FROM $2;`
		if _, err := execSQL(ctx, r.pool, tx, keyQ, change.UserID, string(change.PlanID)); err != nil {
			return mapError(err)
		}
		return nil
	})
}

