package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/retgrow/billing/pkg/types"
)

// TransactionLog is an append-only audit of ledger state changes, written in the same DB
// transaction as the change it describes.
type TransactionLog struct {
	ID            string                           `gorm:"column:id;primary_key;type:uuid"`
	UserID        string                           `gorm:"column:user_id;type:varchar(64);index;not null"`
	TransactionID string                           `gorm:"column:transaction_id;type:varchar(64);index;not null"`
	Reference     string                           `gorm:"column:reference;type:varchar(64);not null"`
	Reason        types.TransactionChangeReason    `gorm:"column:reason;type:varchar(64);not null"`
	Before        datatypes.JSONType[*Transaction] `gorm:"column:before;type:jsonb"`
	After         datatypes.JSONType[*Transaction] `gorm:"column:after;type:jsonb"`
	Extra         datatypes.JSONMap                `gorm:"column:extra;type:jsonb"`
	CreatedAt     time.Time                        `json:"created_at"`
}

func (TransactionLog) TableName() string {
	return "payment_transaction_log"
}
