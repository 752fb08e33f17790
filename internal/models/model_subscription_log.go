package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/retgrow/billing/pkg/types"
)

// SubscriptionLog records changes to subscription rows.
// Use case: troubleshooting and billing reconciliation.
type SubscriptionLog struct {
	ID             string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID         string `gorm:"column:user_id;type:varchar(64);index;not null"`
	SubscriptionID string `gorm:"column:subscription_id;type:varchar(64);not null"`
	// Reason is the change reason.
	Reason types.SubscriptionChangeReason `gorm:"column:reason;type:varchar(64);not null"`
	// Before is nil for inserted rows.
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb"`
	After  datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb"`
	// Extra carries trigger details such as the transaction reference.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb"`
	CreatedAt time.Time
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
