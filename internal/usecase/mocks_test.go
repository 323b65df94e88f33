//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Clock ----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// ---- In-memory PaymentRepository ----

type MockPaymentRepo struct {
	mu     sync.Mutex
	data   map[string]*model.Payment // by id
	byTxn  map[string]string         // transaction uuid -> id
	writes int                       // successful transitions

	CreateFunc     func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	FindByIDFunc   func(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error)
	TransitionFunc func(ctx context.Context, tx repository.Tx, id string, t model.PaymentTransition) (bool, error)
	ExpireUserFunc func(ctx context.Context, tx repository.Tx, userID string, cutoff time.Time) (int64, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}, byTxn: map[string]string{}}
}

func (r *MockPaymentRepo) Create(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.CreateFunc != nil {
		return r.CreateFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byTxn[p.TransactionUUID]; dup {
		return domain.ErrAlreadyExists
	}
	cp := *p
	r.data[p.ID] = &cp
	r.byTxn[p.TransactionUUID] = p.ID
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.data[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByTransactionUUID(ctx context.Context, tx repository.Tx, txnUUID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byTxn[txnUUID]; ok {
		cp := *r.data[id]
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) FindByTransactionUUIDForUser(ctx context.Context, tx repository.Tx, txnUUID, userID string) (*model.Payment, error) {
	p, err := r.FindByTransactionUUID(ctx, tx, txnUUID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (r *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockPaymentRepo) TransitionFromPending(ctx context.Context, tx repository.Tx, id string, t model.PaymentTransition) (bool, error) {
	if r.TransitionFunc != nil {
		return r.TransitionFunc(ctx, tx, id, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = t.Status
	if t.RefID != nil {
		p.EsewaRefID = t.RefID
	}
	if t.RawPayload != nil {
		p.EsewaRawPayload = t.RawPayload
	}
	if t.PeriodStart != nil {
		p.PeriodStart = t.PeriodStart
	}
	if t.PeriodEnd != nil {
		p.PeriodEnd = t.PeriodEnd
	}
	r.writes++
	return true, nil
}

func (r *MockPaymentRepo) ExpirePendingForUser(ctx context.Context, tx repository.Tx, userID string, cutoff time.Time) (int64, error) {
	if r.ExpireUserFunc != nil {
		return r.ExpireUserFunc(ctx, tx, userID, cutoff)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.data {
		if p.UserID == userID && p.Status == model.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			p.Status = model.PaymentStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *MockPaymentRepo) ExpirePendingBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.data {
		if limit > 0 && n >= int64(limit) {
			break
		}
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(cutoff) {
			p.Status = model.PaymentStatusExpired
			n++
		}
	}
	return n, nil
}

// Seed stores p as-is.
func (r *MockPaymentRepo) Seed(p *model.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.data[p.ID] = &cp
	r.byTxn[p.TransactionUUID] = p.ID
}

// Get returns a copy of the stored payment.
func (r *MockPaymentRepo) Get(id string) *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (r *MockPaymentRepo) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// ---- In-memory SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu      sync.Mutex
	byUser  map[string]*model.Subscription
	upserts int

	FindByUserFunc func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
	UpsertFunc     func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byUser: map[string]*model.Subscription{}}
}

func (r *MockSubscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if r.FindByUserFunc != nil {
		return r.FindByUserFunc(ctx, tx, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byUser[userID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.UpsertFunc != nil {
		return r.UpsertFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	if old, ok := r.byUser[s.UserID]; ok {
		cp.ID = old.ID
	}
	r.byUser[s.UserID] = &cp
	r.upserts++
	return nil
}

func (r *MockSubscriptionRepo) ExpireLapsed(ctx context.Context, tx repository.Tx, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byUser {
		if s.Status == model.SubscriptionStatusActive && !s.CurrentPeriodEnd.After(now) {
			s.Status = model.SubscriptionStatusExpired
			n++
		}
	}
	return n, nil
}

func (r *MockSubscriptionRepo) Upserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upserts
}

func (r *MockSubscriptionRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// ---- Transaction manager ----

type MockTxManager struct {
	mu sync.Mutex // serializes transactions like row locks would

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// ---- Rate limiter ----

type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, key string) (bool, error)
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func (m *MockRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, key)
	}
	return true, nil
}

// ---- Plan syncer ----

type MockPlanSyncer struct {
	mu      sync.Mutex
	changes []model.PlanChange
	Err     error
}

var _ adapter.PlanSyncer = (*MockPlanSyncer)(nil)

func (m *MockPlanSyncer) SyncPlan(ctx context.Context, change model.PlanChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return m.Err
}

func (m *MockPlanSyncer) Changes() []model.PlanChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PlanChange(nil), m.changes...)
}

// ---- Payment gateway ----

type MockPaymentGateway struct {
	BuildFormFunc      func(txnUUID string, amount, tax, total int64) (adapter.PaymentForm, error)
	DecodeCallbackFunc func(data string) (*adapter.CallbackPayload, error)
	CheckStatusFunc    func(ctx context.Context, txnUUID string, total int64) (*adapter.TransactionStatus, error)
}

var _ adapter.PaymentGateway = (*MockPaymentGateway)(nil)

func (m *MockPaymentGateway) Name() string        { return "mockpay" }
func (m *MockPaymentGateway) ProductCode() string { return "EPAYTEST" }

func (m *MockPaymentGateway) BuildForm(txnUUID string, amount, tax, total int64) (adapter.PaymentForm, error) {
	if m.BuildFormFunc != nil {
		return m.BuildFormFunc(txnUUID, amount, tax, total)
	}
	return adapter.PaymentForm{Fields: map[string]string{"transaction_uuid": txnUUID}, PaymentURL: "https://pay.example/form"}, nil
}

func (m *MockPaymentGateway) DecodeCallback(data string) (*adapter.CallbackPayload, error) {
	if m.DecodeCallbackFunc != nil {
		return m.DecodeCallbackFunc(data)
	}
	return nil, adapter.ErrCallbackMalformed
}

func (m *MockPaymentGateway) CheckStatus(ctx context.Context, txnUUID string, total int64) (*adapter.TransactionStatus, error) {
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, txnUUID, total)
	}
	return &adapter.TransactionStatus{TransactionUUID: txnUUID, TotalAmount: strconv.FormatInt(total, 10), Status: adapter.GatewayStatusComplete}, nil
}
