package models

import (
	"time"
)

// DatecodeBucket tracks bulk quantity for fixture-mode jigs, keyed by the
// manufacturer datecode. The row persists at zero quantity so a later
// receipt reuses it instead of recreating.
type DatecodeBucket struct {
	ID             int       `gorm:"primary_key" json:"id"`
	CustomerId     string    `gorm:"size:64;not null;index:uniq_bucket,unique" json:"customer_id"`
	FixtureId      int       `gorm:"not null;index:uniq_bucket,unique" json:"fixture_id"`
	Datecode       string    `gorm:"size:100;not null;index:uniq_bucket,unique" json:"datecode"`
	QuantityOnHand int       `gorm:"not null;default:0" json:"quantity_on_hand"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
