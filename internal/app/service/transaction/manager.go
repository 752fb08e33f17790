package transaction

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/retgrow/billing/internal/models"
	"github.com/retgrow/billing/pkg/types"
)

const (
	MessageActivated        = "Subscription activated successfully"
	MessageAlreadyProcessed = "Transaction already processed"
	MessagePending          = "Payment is still pending"
	MessageVerifyFailed     = "Payment verification failed"
)

type InitializeRequest struct {
	UserID       string
	Plan         types.Plan
	BillingCycle types.BillingCycle
	Provider     types.PaymentProvider
	CallbackURL  string
}

type InitializeResponse struct {
	Reference        string                `json:"reference"`
	AuthorizationURL string                `json:"authorization_url"`
	Provider         types.PaymentProvider `json:"provider"`
	Amount           decimal.Decimal       `json:"amount"`
	Currency         string                `json:"currency"`
}

// VerifyOutcome is what callers of VerifyAndActivate see. Status PENDING means the
// provider has not confirmed yet and the caller may poll again.
type VerifyOutcome struct {
	Reference        string                  `json:"reference"`
	Status           types.TransactionStatus `json:"status"`
	Amount           decimal.Decimal         `json:"amount"`
	Currency         string                  `json:"currency"`
	Plan             types.Plan              `json:"plan,omitempty"`
	BillingCycle     types.BillingCycle      `json:"billing_cycle,omitempty"`
	SubscriptionID   *string                 `json:"subscription_id,omitempty"`
	Message          string                  `json:"message"`
	AlreadyProcessed bool                    `json:"-"`
}

// TransactionManager is the ledger surface used by handlers and the webhook processor.
type TransactionManager interface {
	// Create a PENDING purchase and a provider checkout for it.
	InitializePayment(ctx context.Context, req *InitializeRequest) (*InitializeResponse, error)
	// Settle a PENDING purchase against the provider. Safe to call repeatedly.
	VerifyAndActivate(ctx context.Context, reference string) (*VerifyOutcome, error)
	GetTransaction(ctx context.Context, userID, reference string) (*models.Transaction, error)
	ListUserTransactions(ctx context.Context, userID string, from, size int) (*ScanTransactionsResponse, error)
	// Scan transactions (used by admin list pages).
	ScanTransactions(ctx context.Context, req *ScanTransactionsRequest) (*ScanTransactionsResponse, error)
}

// Scan transaction request/response.
type ScanTransactionsRequest struct {
	Filters   []*types.CommonFilter `json:"filters"`
	From      int                   `json:"from"`
	Size      int                   `json:"size"`
	SortBy    string                `json:"sort_by"`
	SortOrder string                `json:"sort_order"`
}

type ScanTransactionsResponse struct {
	Items []*models.Transaction `json:"items"`
	Total int64                 `json:"total"`
}

// ScanFields are the columns admin filters and sorting may reference.
var ScanFields = []string{
	"user_id", "subscription_id", "provider", "reference", "external_reference",
	"status", "kind", "plan", "billing_cycle", "currency", "amount", "created_at", "completed_at",
}
