package models

import (
	"time"

	"github.com/retgrow/billing/pkg/types"
)

// Subscription is one granted billing period. Rows are versioned: a plan change inserts a
// new row and cancels the previous one, so the table doubles as billing history.
// At most one row per user is ACTIVE (partial unique index).
type Subscription struct {
	ID              string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID          string                   `gorm:"column:user_id;type:varchar(64);not null;index:idx_subscription_user_id;uniqueIndex:uniq_subscription_user_active,where:status = 'ACTIVE'" json:"user_id"`
	Plan            types.Plan               `gorm:"column:plan;type:varchar(16);not null" json:"plan"`
	BillingCycle    *types.BillingCycle      `gorm:"column:billing_cycle;type:varchar(16)" json:"billing_cycle"`
	Status          types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	StartDate       time.Time                `gorm:"column:start_date;not null" json:"start_date"`
	EndDate         *time.Time               `gorm:"column:end_date;index" json:"end_date"`
	AutoRenew       bool                     `gorm:"column:auto_renew;not null" json:"auto_renew"`
	PaymentProvider *types.PaymentProvider   `gorm:"column:payment_provider;type:varchar(32)" json:"payment_provider"`
	// PaymentToken is the opaque recurring-charge credential; never serialized to clients.
	PaymentToken *string    `gorm:"column:payment_token;type:varchar(255)" json:"-"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at" json:"cancelled_at"`
	CancelReason *string    `gorm:"column:cancel_reason;type:varchar(255)" json:"cancel_reason"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscription"
}

// IsEffective reports whether the row can govern access at now: ACTIVE, or CANCELLED
// with its end date still ahead (grace period).
func (s *Subscription) IsEffective(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case types.SubscriptionStatusActive:
		return true
	case types.SubscriptionStatusCancelled:
		return s.EndDate != nil && s.EndDate.After(now)
	}
	return false
}

// IsExpired is the derived state: end date passed and the row no longer governs access.
func (s *Subscription) IsExpired(now time.Time) bool {
	return s != nil && s.EndDate != nil && !s.EndDate.After(now) && !s.IsEffective(now)
}

func (s *Subscription) Cycle() types.BillingCycle {
	if s == nil || s.BillingCycle == nil {
		return ""
	}
	return *s.BillingCycle
}

func (s *Subscription) Provider() types.PaymentProvider {
	if s == nil || s.PaymentProvider == nil {
		return ""
	}
	return *s.PaymentProvider
}
