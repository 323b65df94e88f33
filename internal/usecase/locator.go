package usecase

import (
	"context"

	"orafinite-billing/internal/domain/model"
	"orafinite-billing/internal/domain/ports/adapter"
	"orafinite-billing/internal/domain/ports/repository"
)

// LookupBasis names what a callback's payment lookup trusted.
type LookupBasis string

const (
	// LookupSession requires the payment to belong to the signed-in user.
	LookupSession LookupBasis = "session"
	// LookupGatewayProof trusts the transaction uuid alone, on the strength of
	// a verified gateway signature. Used when the session expired mid-checkout.
	LookupGatewayProof LookupBasis = "gateway_proof"
)

// verifiedCallback can only be built from a payload that passed signature and
// product-code verification.
type verifiedCallback struct {
	payload *adapter.CallbackPayload
}

type paymentLocator interface {
	basis() LookupBasis
	locate(ctx context.Context, payments repository.PaymentRepository) (*model.Payment, error)
}

type sessionLocator struct {
	userID string
	proof  verifiedCallback
}

func (l sessionLocator) basis() LookupBasis { return LookupSession }

func (l sessionLocator) locate(ctx context.Context, payments repository.PaymentRepository) (*model.Payment, error) {
	return payments.FindByTransactionUUIDForUser(ctx, nil, l.proof.payload.TransactionUUID, l.userID)
}

type gatewayProofLocator struct {
	proof verifiedCallback
}

func (l gatewayProofLocator) basis() LookupBasis { return LookupGatewayProof }

func (l gatewayProofLocator) locate(ctx context.Context, payments repository.PaymentRepository) (*model.Payment, error) {
	return payments.FindByTransactionUUID(ctx, nil, l.proof.payload.TransactionUUID)
}

func newPaymentLocator(sessionUserID string, proof verifiedCallback) paymentLocator {
	if sessionUserID != "" {
		return sessionLocator{userID: sessionUserID, proof: proof}
	}
	return gatewayProofLocator{proof: proof}
}
