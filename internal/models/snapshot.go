package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketVolumeSnapshot records per-market volume for one hour bucket.
// Re-recording the same bucket within the hour overwrites in place, so the
// snapshot history stays one row per (market, hour).
type MarketVolumeSnapshot struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MarketID   string          `gorm:"size:120;uniqueIndex:uq_snapshots_market_hour,priority:1;not null" json:"market_id"`
	HourBucket time.Time       `gorm:"type:timestamptz;uniqueIndex:uq_snapshots_market_hour,priority:2;not null" json:"hour_bucket"`
	Volume     decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"volume"`
	YesVolume  decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"yes_volume"`
	NoVolume   decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"no_volume"`
	TradeCount int64           `gorm:"not null" json:"trade_count"`
	CreatedAt  time.Time       `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (MarketVolumeSnapshot) TableName() string { return "market_volume_snapshots" }
