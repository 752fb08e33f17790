package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/retgrow/billing/pkg/types"
)

// Transaction is one payment attempt: an initial purchase or a renewal charge.
// Status only moves PENDING -> SUCCESS or PENDING -> FAILED; terminal rows are never updated.
type Transaction struct {
	ID             string  `gorm:"column:id;primary_key;type:uuid" json:"id"`
	UserID         string  `gorm:"column:user_id;type:varchar(64);not null;index:idx_payment_transaction_user_created,priority:1" json:"user_id"`
	SubscriptionID *string `gorm:"column:subscription_id;type:varchar(64);index" json:"subscription_id"`
	// Amount is in major currency units.
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency          string                  `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	Provider          types.PaymentProvider   `gorm:"column:provider;type:varchar(32);not null" json:"provider"`
	Reference         string                  `gorm:"column:reference;type:varchar(64);not null;uniqueIndex" json:"reference"`
	ExternalReference *string                 `gorm:"column:external_reference;type:varchar(255)" json:"external_reference"`
	Status            types.TransactionStatus `gorm:"column:status;type:varchar(16);not null;index:idx_payment_transaction_status_created,priority:1" json:"status"`
	Kind              types.TransactionKind   `gorm:"column:kind;type:varchar(16);not null" json:"kind"`
	Plan              types.Plan              `gorm:"column:plan;type:varchar(16);not null" json:"plan"`
	BillingCycle      types.BillingCycle      `gorm:"column:billing_cycle;type:varchar(16);not null" json:"billing_cycle"`
	FailureReason     *string                 `gorm:"column:failure_reason;type:varchar(512)" json:"failure_reason"`
	Metadata          datatypes.JSONMap       `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt         time.Time               `gorm:"index:idx_payment_transaction_user_created,priority:2,sort:desc;index:idx_payment_transaction_status_created,priority:2" json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
	CompletedAt       *time.Time              `gorm:"column:completed_at" json:"completed_at"`
}

func (Transaction) TableName() string {
	return "payment_transaction"
}

func (t *Transaction) IsTerminal() bool {
	return t != nil && t.Status.IsTerminal()
}

// MetadataString returns metadata[key] when it is a string.
func (t *Transaction) MetadataString(key string) string {
	if t == nil || t.Metadata == nil {
		return ""
	}
	s, _ := t.Metadata[key].(string)
	return s
}
