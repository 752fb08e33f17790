// Package gateway adapts concrete payment providers to one contract. Adapters never
// return provider faults as errors: every outcome is a result value with OK set or a
// human readable Reason, so the ledger can always record what happened.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/retgrow/billing/pkg/types"
)

type InitRequest struct {
	// Amount is in major currency units.
	Amount      decimal.Decimal
	Currency    string
	Email       string
	Reference   string
	CallbackURL string
	Description string
	Metadata    map[string]any
}

type InitResult struct {
	OK                bool
	AuthorizationURL  string
	ExternalReference string
	Reason            string
}

type VerifyRequest struct {
	Reference         string
	ExternalReference string
}

type VerifyStatus string

const (
	VerifyStatusSuccess VerifyStatus = "success"
	// VerifyStatusPending covers unpaid checkouts and transport failures: the payment may
	// still complete, so the ledger keeps the row PENDING.
	VerifyStatusPending VerifyStatus = "pending"
	VerifyStatusFailed  VerifyStatus = "failed"
)

type VerifyResult struct {
	OK                bool
	Status            VerifyStatus
	Amount            decimal.Decimal
	Currency          string
	ExternalReference string
	// Token is a reusable recurring-charge credential when the provider issued one.
	Token  string
	Raw    map[string]any
	Reason string
}

type ChargeRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Email     string
	Token     string
	Reference string
	Metadata  map[string]any
}

type ChargeResult struct {
	OK                bool
	ExternalReference string
	Reason            string
}

// Gateway is implemented once per provider.
type Gateway interface {
	Provider() types.PaymentProvider
	InitializePayment(ctx context.Context, req *InitRequest) InitResult
	VerifyPayment(ctx context.Context, req *VerifyRequest) VerifyResult
	// VerifyWebhookSignature checks the provider signature over the raw, unparsed body.
	VerifyWebhookSignature(body []byte, signature string) bool
	ChargeSubscription(ctx context.Context, req *ChargeRequest) ChargeResult
	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
}

func initFailure(reason string) InitResult { return InitResult{Reason: reason} }

func verifyFailure(status VerifyStatus, reason string) VerifyResult {
	return VerifyResult{Status: status, Reason: reason}
}

func chargeFailure(reason string) ChargeResult { return ChargeResult{Reason: reason} }
