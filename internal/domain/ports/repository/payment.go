package repository

import (
	"context"
	"time"

	"orafinite-billing/internal/domain/model"
)

// -----------------------------
// Payments
// -----------------------------

type PaymentRepository interface {
	// Create inserts a new pending payment. A duplicate transaction uuid yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, p *model.Payment) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Payment, error)
	// FindByTransactionUUID locates a payment by its gateway correlation key alone.
	FindByTransactionUUID(ctx context.Context, tx Tx, transactionUUID string) (*model.Payment, error)
	// FindByTransactionUUIDForUser additionally requires the payment to belong to userID.
	FindByTransactionUUIDForUser(ctx context.Context, tx Tx, transactionUUID, userID string) (*model.Payment, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.Payment, error)

	// TransitionFromPending applies t only while the row is still pending.
	// It reports false when another writer already moved the payment out of pending.
	TransitionFromPending(ctx context.Context, tx Tx, id string, t model.PaymentTransition) (bool, error)
	// ExpirePendingForUser flips the user's pending payments created before cutoff to expired.
	ExpirePendingForUser(ctx context.Context, tx Tx, userID string, cutoff time.Time) (int64, error)
	// ExpirePendingBefore flips up to limit pending payments created before cutoff to expired.
	ExpirePendingBefore(ctx context.Context, tx Tx, cutoff time.Time, limit int) (int64, error)
}
