package model

import (
	"time"

	"gorm.io/datatypes"
)

// TradeSnapshot is the durable copy of a calculator session. Payload holds
// the JSON snapshot; the remaining columns are denormalised for listing.
type TradeSnapshot struct {
	SessionID  string         `gorm:"primaryKey;size:36" json:"session_id"`
	Version    int            `gorm:"not null" json:"version"`
	Modifier   string         `gorm:"size:1" json:"modifier"`
	Unit       string         `gorm:"size:2" json:"unit"`
	YourCount  int            `json:"your_count"`
	TheirCount int            `json:"their_count"`
	Payload    datatypes.JSON `gorm:"not null" json:"payload"`
	CreatedAt  time.Time      `gorm:"autoCreateTime:milli" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"index:idx_snapshot_updated;autoUpdateTime:milli" json:"updated_at"`
}
