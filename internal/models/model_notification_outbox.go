package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationOutboxStatus string

const (
	NotificationOutboxStatusPending NotificationOutboxStatus = "pending"
	NotificationOutboxStatusSent    NotificationOutboxStatus = "sent"
	NotificationOutboxStatusDead    NotificationOutboxStatus = "dead"
)

// NotificationOutbox holds customer notifications (renewal receipts, failure notices)
// until the dispatcher hands them to the email collaborator.
type NotificationOutbox struct {
	ID        string                   `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string                   `gorm:"column:user_id;type:varchar(64);not null" json:"user_id"`
	Event     string                   `gorm:"column:event;type:varchar(64);not null" json:"event"`
	Payload   datatypes.JSONMap        `gorm:"column:payload;type:jsonb" json:"payload"`
	Status    NotificationOutboxStatus `gorm:"column:status;type:varchar(16);not null;index:idx_notification_outbox_status_created,priority:1" json:"status"`
	Attempts  int                      `gorm:"column:attempts;not null" json:"attempts"`
	LastError *string                  `gorm:"column:last_error;type:varchar(512)" json:"last_error"`
	SentAt    *time.Time               `gorm:"column:sent_at" json:"sent_at"`
	CreatedAt time.Time                `gorm:"index:idx_notification_outbox_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func (NotificationOutbox) TableName() string { return "notification_outbox" }
