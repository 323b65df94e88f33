// File: internal/usecase/callback_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"orafinite-billing/internal/domain"
	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/domain/ports/repository"
	"orafinite-billing/internal/infra/logging"
)

var _ CallbackUseCase = (*callbackUC)(nil)

// CallbackUseCase authenticates gateway redirects and drives the payment state machine.
type CallbackUseCase interface {
	Verify(ctx context.Context, in CallbackInput) (*CallbackResult, error)
}

// CallbackInput is one gateway redirect. SessionUserID is empty when the
// browser session expired while the user was at the gateway.
type CallbackInput struct {
	Data          string
	SessionUserID string
}

type CallbackOutcome string

const (
	OutcomeSuccess CallbackOutcome = "success"
	OutcomeFailed  CallbackOutcome = "failed"
	OutcomeError   CallbackOutcome = "error"
)

// CallbackReason is the bounded explanation shown to the browser. Upstream
// text never reaches it.
type CallbackReason string

const (
	ReasonNone         CallbackReason = ""
	ReasonVerification CallbackReason = "verification"
	ReasonNotFound     CallbackReason = "not_found"
	ReasonExpired      CallbackReason = "expired"
	ReasonProcessed    CallbackReason = "processed"
	ReasonDeclined     CallbackReason = "declined"
	ReasonInternal     CallbackReason = "internal"
)

// Security event kinds.
const (
	SecurityMalformed    = "malformed"
	SecuritySignature    = "signature"
	SecurityProductCode  = "product_code"
	SecurityAmount       = "amount"
	SecurityResurrection = "resurrection"
)

// Status check results.
const (
	StatusCheckSkipped      = "skipped"
	StatusCheckComplete     = "complete"
	StatusCheckRejected     = "rejected"
	StatusCheckInconclusive = "inconclusive"
)

// CallbackResult describes how a redirect was handled.
type CallbackResult struct {
	Outcome       CallbackOutcome
	Reason        CallbackReason
	PaymentID     string
	OwnerID       string // payment owner; may differ from the session user on the gateway-proof path
	LookupBasis   LookupBasis
	Idempotent    bool // payment was already completed by an earlier delivery
	Activated     bool // this delivery activated the subscription
	PlanID        model.PlanID
	TotalAmount   int64
	SecurityEvent string
	StatusCheck   string
}

// amountTolerance absorbs decimal representation only ("6,900.0" vs 6900).
const amountTolerance = 0.01

type callbackUC struct {
	payments repository.PaymentRepository
	subs     repository.SubscriptionRepository
	tm       repository.TransactionManager
	gateway  adapter.PaymentGateway
	syncer   adapter.PlanSyncer
	log      *zerolog.Logger
	opts     options
}

func NewCallbackUseCase(
	payments repository.PaymentRepository,
	subs repository.SubscriptionRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	syncer adapter.PlanSyncer,
	logger *zerolog.Logger,
	opts ...Option,
) *callbackUC {
	l := logger.With().Str("component", "CallbackUC").Logger()
	return &callbackUC{
		payments: payments,
		subs:     subs,
		tm:       tm,
		gateway:  gateway,
		syncer:   syncer,
		log:      &l,
		opts:     buildOptions(opts),
	}
}

func (u *callbackUC) Verify(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "CallbackUC.Verify")()

	res := &CallbackResult{StatusCheck: StatusCheckSkipped}

	// decode, signature, product code
	payload, err := u.gateway.DecodeCallback(in.Data)
	if err != nil {
		u.rejectUnauthenticated(log, res, payload, err)
		return res, nil
	}
	proof := verifiedCallback{payload: payload}
	ctx = logging.WithTransactionUUID(ctx, payload.TransactionUUID)
	log = logging.With(ctx, u.log)

	// identity resolution
	loc := newPaymentLocator(in.SessionUserID, proof)
	res.LookupBasis = loc.basis()
	p, err := loc.locate(ctx, u.payments)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Str("lookup", string(res.LookupBasis)).Msg("callback for unknown payment")
			return res.fail(ReasonNotFound), nil
		}
		return u.internalError(log, res, err, "lookup payment")
	}
	res.PaymentID, res.OwnerID = p.ID, p.UserID
	res.PlanID, res.TotalAmount = p.PlanID, p.TotalAmount
	log = logging.With(logging.WithUserID(ctx, p.UserID), u.log)

	// terminal-state guard
	switch p.Status {
	case model.PaymentStatusPending:
	case model.PaymentStatusCompleted:
		log.Info().Str("payment_id", p.ID).Msg("callback replay for completed payment")
		res.Outcome, res.Idempotent = OutcomeSuccess, true
		return res, nil
	default:
		res.SecurityEvent = SecurityResurrection
		securityEvent(log, SecurityResurrection).
			Str("payment_id", p.ID).
			Str("status", string(p.Status)).
			Msg("callback for terminal payment rejected")
		return res.fail(ReasonProcessed), nil
	}

	now := u.opts.now()

	// pending window
	if p.ExpiredAt(now) {
		u.settle(ctx, log, p, model.PaymentTransition{
			Status:     model.PaymentStatusExpired,
			RawPayload: auditPayload(auditRecord{Reason: "expired", Callback: payload.Raw}),
		})
		log.Info().Str("payment_id", p.ID).Time("created_at", p.CreatedAt).Msg("callback after pending window")
		return res.fail(ReasonExpired), nil
	}

	// amount
	if !amountMatches(payload.TotalAmount, p.TotalAmount) {
		res.SecurityEvent = SecurityAmount
		securityEvent(log, SecurityAmount).
			Str("payment_id", p.ID).
			Int64("expected_total", p.TotalAmount).
			Str("reported_total", payload.TotalAmount).
			Msg("callback amount mismatch")
		u.settle(ctx, log, p, model.PaymentTransition{
			Status: model.PaymentStatusFailed,
			RawPayload: auditPayload(auditRecord{
				Reason:   "amount_mismatch",
				Expected: p.TotalAmount,
				Reported: payload.TotalAmount,
				Callback: payload.Raw,
			}),
		})
		return res.fail(ReasonVerification), nil
	}

	// the gateway's own signed statement
	if adapter.GatewayStatus(payload.Status) != adapter.GatewayStatusComplete {
		u.settle(ctx, log, p, model.PaymentTransition{
			Status:     model.PaymentStatusFailed,
			RawPayload: auditPayload(auditRecord{Reason: "callback_status", Callback: payload.Raw}),
		})
		log.Info().Str("payment_id", p.ID).Str("gateway_status", payload.Status).Msg("gateway reported non-complete status")
		return res.fail(ReasonDeclined), nil
	}

	// live status cross-check
	refID := nonEmpty(payload.TransactionCode)
	st, err := u.checkStatus(ctx, p)
	switch {
	case err != nil:
		res.StatusCheck = StatusCheckInconclusive
		log.Warn().Err(err).Str("payment_id", p.ID).Msg("status check inconclusive, proceeding on verified signature and amount")
	case st.Status != adapter.GatewayStatusComplete:
		res.StatusCheck = StatusCheckRejected
		u.settle(ctx, log, p, model.PaymentTransition{
			Status:     model.PaymentStatusFailed,
			RefID:      st.RefID,
			RawPayload: auditPayload(auditRecord{Reason: "status_check", Callback: payload.Raw, Status: st.Raw}),
		})
		log.Warn().Str("payment_id", p.ID).Str("gateway_status", string(st.Status)).Msg("status endpoint rejected payment")
		return res.fail(ReasonDeclined), nil
	default:
		res.StatusCheck = StatusCheckComplete
		if st.RefID != nil && *st.RefID != "" {
			refID = st.RefID
		}
	}

	// conditional write + activation
	sub, err := u.commit(ctx, p, refID, payload.Raw, now)
	if err != nil {
		return u.internalError(log, res, err, "commit payment")
	}
	if sub == nil {
		return u.resolveLostRace(ctx, log, res, p.ID)
	}
	res.Outcome, res.Activated = OutcomeSuccess, true
	log.Info().
		Str("payment_id", p.ID).
		Str("plan_id", string(sub.PlanID)).
		Time("period_end", sub.CurrentPeriodEnd).
		Str("lookup", string(res.LookupBasis)).
		Msg("payment completed, subscription activated")

	// downstream sync never rolls back the activation
	change := model.PlanChange{UserID: p.UserID, PlanID: sub.PlanID, PaymentID: p.ID, PeriodEnd: sub.CurrentPeriodEnd}
	if err := u.syncer.SyncPlan(ctx, change); err != nil {
		log.Warn().Err(err).Msg("plan sync not scheduled")
	}
	return res, nil
}

// commit applies pending->completed and upserts the owner's subscription in one
// transaction. A nil subscription means another delivery already moved the payment.
func (u *callbackUC) commit(ctx context.Context, p *model.Payment, refID *string, raw []byte, now time.Time) (*model.Subscription, error) {
	start, end := now, now.Add(model.SubscriptionPeriod)
	var activated *model.Subscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		won, err := u.payments.TransitionFromPending(ctx, tx, p.ID, model.PaymentTransition{
			Status:      model.PaymentStatusCompleted,
			RefID:       refID,
			RawPayload:  json.RawMessage(raw),
			PeriodStart: &start,
			PeriodEnd:   &end,
		})
		if err != nil || !won {
			return err
		}

		existing, err := u.subs.FindByUser(ctx, tx, p.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		sub, err := model.Activate(existing, u.opts.newID(), p, now)
		if err != nil {
			return err
		}
		if err := u.subs.Upsert(ctx, tx, sub); err != nil {
			return err
		}
		activated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

// resolveLostRace reports the outcome after a concurrent delivery won the conditional write.
func (u *callbackUC) resolveLostRace(ctx context.Context, log *zerolog.Logger, res *CallbackResult, paymentID string) (*CallbackResult, error) {
	cur, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return u.internalError(log, res, err, "reload payment")
	}
	if cur.Status == model.PaymentStatusCompleted {
		log.Info().Str("payment_id", paymentID).Msg("concurrent delivery completed payment first")
		res.Outcome, res.Idempotent = OutcomeSuccess, true
		return res, nil
	}
	log.Info().Str("payment_id", paymentID).Str("status", string(cur.Status)).Msg("payment left pending concurrently")
	return res.fail(ReasonProcessed), nil
}

func (u *callbackUC) checkStatus(ctx context.Context, p *model.Payment) (*adapter.TransactionStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, u.opts.statusTimeout)
	defer cancel()
	st, err := u.gateway.CheckStatus(ctx, p.TransactionUUID, p.TotalAmount)
	if err != nil {
		return nil, err
	}
	// An answer about another transaction or merchant says nothing about this payment.
	if st.TransactionUUID != p.TransactionUUID || st.ProductCode != p.ProductCode {
		return nil, fmt.Errorf("%w: answer for %q/%q", adapter.ErrStatusInconclusive, st.ProductCode, st.TransactionUUID)
	}
	return st, nil
}

// settle moves a pending payment to a failure state outside the commit path.
func (u *callbackUC) settle(ctx context.Context, log *zerolog.Logger, p *model.Payment, t model.PaymentTransition) {
	moved, err := u.payments.TransitionFromPending(ctx, nil, p.ID, t)
	if err != nil {
		log.Error().Err(err).Str("payment_id", p.ID).Str("to", string(t.Status)).Msg("payment transition failed")
		return
	}
	if !moved {
		log.Debug().Str("payment_id", p.ID).Str("to", string(t.Status)).Msg("payment already left pending")
	}
}

func (u *callbackUC) rejectUnauthenticated(log *zerolog.Logger, res *CallbackResult, payload *adapter.CallbackPayload, err error) {
	kind := SecurityMalformed
	switch {
	case errors.Is(err, adapter.ErrSignatureInvalid):
		kind = SecuritySignature
	case errors.Is(err, adapter.ErrProductCodeMismatch):
		kind = SecurityProductCode
	}
	res.SecurityEvent = kind
	ev := securityEvent(log, kind).Err(err)
	if payload != nil {
		ev = ev.
			Str("transaction_uuid", payload.TransactionUUID).
			Str("product_code", payload.ProductCode).
			Str("reported_total", payload.TotalAmount).
			Str("gateway_status", payload.Status)
	}
	ev.Msg("callback rejected")
	res.fail(ReasonVerification)
}

func (u *callbackUC) internalError(log *zerolog.Logger, res *CallbackResult, err error, op string) (*CallbackResult, error) {
	log.Error().Err(err).Str("payment_id", res.PaymentID).Msg(op + " failed")
	res.Outcome, res.Reason = OutcomeError, ReasonInternal
	return res, err
}

func (r *CallbackResult) fail(reason CallbackReason) *CallbackResult {
	r.Outcome, r.Reason = OutcomeFailed, reason
	return r
}

func securityEvent(log *zerolog.Logger, kind string) *zerolog.Event {
	return log.Warn().Str("event", "security").Str("kind", kind)
}

// amountMatches compares the gateway's decimal string with the stored whole-rupee total.
func amountMatches(reported string, expected int64) bool {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(reported), ",", ""), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return math.Abs(v-float64(expected)) <= amountTolerance
}

type auditRecord struct {
	Reason   string          `json:"reason"`
	Expected int64           `json:"expected_total,omitempty"`
	Reported string          `json:"reported_total,omitempty"`
	Callback json.RawMessage `json:"callback,omitempty"`
	Status   json.RawMessage `json:"status_response,omitempty"`
}

func auditPayload(rec auditRecord) json.RawMessage {
	if len(rec.Status) > 0 && !json.Valid(rec.Status) {
		rec.Status = nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil
	}
	return b
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
