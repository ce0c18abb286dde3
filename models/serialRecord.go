package models

import (
	"time"
)

// SerialRecord is the per-unit ledger for serial-mode fixtures. A serial is
// created on first receipt and never physically deleted; re-receipt after a
// return reuses the row. (customer, fixture, serial) is unique.
type SerialRecord struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CustomerId      string          `gorm:"size:64;not null;index:uniq_serial,unique" json:"customer_id"`
	FixtureId       int             `gorm:"not null;index:uniq_serial,unique" json:"fixture_id"`
	Serial          string          `gorm:"size:100;not null;index:uniq_serial,unique" json:"serial"`
	ExistenceStatus ExistenceStatus `gorm:"size:20;not null;index" json:"existence_status"`
	UsageStatus     UsageStatus     `gorm:"size:20;not null" json:"usage_status"`
	ReceiptTxId     int             `gorm:"not null" json:"receipt_tx_id"`
	LastReturnTxId  *int            `json:"last_return_tx_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
