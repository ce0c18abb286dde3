package models

import (
	"time"
)

// MaterialTransaction is the append-only ledger. Rows are inserted by the
// transaction engine inside the same DB transaction as the state they
// witness, and are never updated or deleted.
type MaterialTransaction struct {
	ID          int                  `gorm:"primary_key" json:"id"`
	CustomerId  string               `gorm:"size:64;index;not null" json:"customer_id"`
	FixtureId   int                  `gorm:"index;not null" json:"fixture_id"`
	Direction   TransactionDirection `gorm:"size:20;not null" json:"direction"`
	RecordType  RecordType           `gorm:"size:20;not null" json:"record_type"`
	OrderNo     string               `gorm:"size:100" json:"order_no"`
	SourceType  SourceType           `gorm:"size:30" json:"source_type"`
	SerialStart string               `gorm:"size:100" json:"serial_start"`
	SerialEnd   string               `gorm:"size:100" json:"serial_end"`
	Serials     string               `gorm:"type:text" json:"serials"`
	Datecode    string               `gorm:"size:100" json:"datecode"`
	UnitCount   int                  `gorm:"not null" json:"unit_count"`
	Operator    string               `gorm:"size:100" json:"operator"`
	ActorId     int                  `gorm:"not null" json:"actor_id"`
	Note        string               `gorm:"type:text" json:"note"`
	CreatedAt   time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

// NewMaterialTransaction is the wire input for submit_receipt / submit_return.
// RecordType discriminates which lot fields apply; the resolver performs the
// exhaustive case analysis before any state is inspected.
type NewMaterialTransaction struct {
	FixtureId   int        `json:"fixture_id" binding:"required"`
	RecordType  RecordType `json:"record_type" binding:"required"`
	OrderNo     string     `json:"order_no"`
	SourceType  string     `json:"source_type"`
	Note        string     `json:"note"`
	Operator    string     `json:"operator"`
	SerialStart string     `json:"serial_start"`
	SerialEnd   string     `json:"serial_end"`
	// Serials accepts a JSON list; SerialsRaw accepts one comma-separated
	// string. At most one of the two is expected.
	Serials    []string `json:"serials"`
	SerialsRaw string   `json:"serials_raw"`
	Datecode   string   `json:"datecode"`
	Quantity   int      `json:"quantity"`
	// DedupKey, when present, makes retries of the same submission return
	// the original transaction id instead of double-applying.
	DedupKey string `json:"dedup_key"`
}
