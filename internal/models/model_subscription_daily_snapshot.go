package models

import (
	"time"

	"github.com/retgrow/billing/pkg/types"
)

// SubscriptionDailySnapshot records each paying user's effective subscription once per day
// for analytics.
type SubscriptionDailySnapshot struct {
	ID             string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID         string                   `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_user_id_snapshot_date,priority:1" json:"user_id"`
	SubscriptionID string                   `gorm:"column:subscription_id;type:varchar(64);not null" json:"subscription_id"`
	Plan           types.Plan               `gorm:"column:plan;type:varchar(16);not null" json:"plan"`
	Status         types.SubscriptionStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	AutoRenew      bool                     `gorm:"column:auto_renew;not null" json:"auto_renew"`
	EndDate        *time.Time               `gorm:"column:end_date" json:"end_date"`
	// SnapshotDate is YYYY-MM-DD in UTC.
	SnapshotDate string    `gorm:"column:snapshot_date;type:varchar(10);uniqueIndex:idx_user_id_snapshot_date,priority:2" json:"snapshot_date"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (SubscriptionDailySnapshot) TableName() string {
	return "subscription_daily_snapshot"
}
