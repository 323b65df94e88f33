package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, transaction_uuid, product_code, plan_id, amount, tax_amount, total_amount, status, esewa_ref_id, esewa_response_raw, period_start, period_end, created_at, updated_at`

func (r *paymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if p == nil || p.ID == "" || p.TransactionUUID == "" || p.Status != model.PaymentStatusPending {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO payment (
  id, user_id, transaction_uuid, product_code, plan_id, amount, tax_amount, total_amount, status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
);`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.TransactionUUID, p.ProductCode, string(p.PlanID),
		p.Amount, p.TaxAmount, p.TotalAmount, string(p.Status), p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `WHERE id=$1`, id)
}

func (r *paymentRepo) FindByTransactionUUID(ctx context.Context, tx repository.Tx, transactionUUID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `WHERE transaction_uuid=$1`, transactionUUID)
}

func (r *paymentRepo) FindByTransactionUUIDForUser(ctx context.Context, tx repository.Tx, transactionUUID, userID string) (*model.Payment, error) {
	return r.findOne(ctx, tx, `WHERE transaction_uuid=$1 AND user_id=$2`, transactionUUID, userID)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, where string, args ...interface{}) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payment ` + where + ` LIMIT 1`
	if inTx(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPayment(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `SELECT ` + paymentColumns + ` FROM payment WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]*model.Payment, 0, limit)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

// TransitionFromPending is the single conditional write that moves a payment to
// a terminal state. Zero affected rows means another writer got there first.
func (r *paymentRepo) TransitionFromPending(ctx context.Context, tx repository.Tx, id string, t model.PaymentTransition) (bool, error) {
	if !t.Status.Terminal() {
		return false, domain.ErrInvalidArgument
	}
	const q = `
UPDATE payment
   SET status = $2,
       esewa_ref_id = COALESCE($3, esewa_ref_id),
       esewa_response_raw = COALESCE($4, esewa_response_raw),
       period_start = COALESCE($5, period_start),
       period_end = COALESCE($6, period_end),
       updated_at = NOW()
 WHERE id = $1
   AND status = 'pending'`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(t.Status), t.RefID, jsonbArg(t.RawPayload), t.PeriodStart, t.PeriodEnd)
	if err != nil {
		return false, mapError(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) ExpirePendingForUser(ctx context.Context, tx repository.Tx, userID string, cutoff time.Time) (int64, error) {
	const q = `UPDATE payment SET status='expired', updated_at=NOW() WHERE user_id=$1 AND status='pending' AND created_at < $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, userID, cutoff)
	if err != nil {
		return 0, mapError(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *paymentRepo) ExpirePendingBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	// SKIP LOCKED leaves rows a callback is currently holding to that callback.
	const q = `
UPDATE payment
   SET status = 'expired', updated_at = NOW()
 WHERE id IN (
       SELECT id FROM payment
        WHERE status = 'pending' AND created_at < $1
        ORDER BY created_at ASC
        LIMIT $2
          FOR UPDATE SKIP LOCKED)
   AND status = 'pending'`
	cmd, err := execSQL(ctx, r.pool, tx, q, cutoff, limit)
	if err != nil {
		return 0, mapError(err)
	}
	return cmd.RowsAffected(), nil
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	var raw []byte
	if err := row.Scan(
		&p.ID, &p.UserID, &p.TransactionUUID, &p.ProductCode, &p.PlanID,
		&p.Amount, &p.TaxAmount, &p.TotalAmount, &p.Status,
		&p.EsewaRefID, &raw, &p.PeriodStart, &p.PeriodEnd, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		p.EsewaRawPayload = json.RawMessage(raw)
	}
	return p, nil
}

// jsonbArg returns nil for an empty payload so the column keeps SQL NULL.
func jsonbArg(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
