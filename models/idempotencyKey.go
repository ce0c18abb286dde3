package models

import (
	"time"
)

// IdempotencyKey makes transaction submission retries safe when the caller
// supplies a dedup key. Written inside the same DB transaction as the
// ledger row it protects.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	CustomerId  string            `gorm:"size:64;not null;index:uniq_idem,unique" json:"customer_id"`
	HandlerName string            `gorm:"size:100;not null;index:uniq_idem,unique" json:"handler_name"`
	MessageId   string            `gorm:"size:255;not null;index:uniq_idem,unique" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	TxId        *int              `json:"tx_id"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
