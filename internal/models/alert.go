package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Alert kinds.
const (
	AlertKindWhale       = "WHALE_BET"
	AlertKindCoordinated = "COORDINATED_BETTING"
	AlertKindTracked     = "TRACKED_WALLET"
	AlertKindVolumeSpike = "VOLUME_SPIKE"
)

// Alert is one emitted detection result. DedupKey folds kind, market,
// wallet, amount and an hour bucket so re-detection of the same situation
// within the bucket conflicts instead of duplicating. NotifiedAt is the
// durable half of the exactly-once notification gate.
type Alert struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind       string          `gorm:"size:32;index:idx_alerts_kind_time,priority:1;not null" json:"kind"`
	MarketID   string          `gorm:"size:120;index:idx_alerts_market;not null" json:"market_id"`
	Wallet     string          `gorm:"size:80" json:"wallet"`
	Side       string          `gorm:"size:8" json:"side"`
	Amount     decimal.Decimal `gorm:"type:numeric(30,10);not null" json:"amount"`
	Score      int             `gorm:"not null;default:0" json:"score"`
	DedupKey   string          `gorm:"size:240;uniqueIndex:uq_alerts_dedup;not null" json:"dedup_key"`
	Payload    datatypes.JSON  `gorm:"type:jsonb" json:"payload"`
	NotifiedAt *time.Time      `gorm:"type:timestamptz" json:"notified_at"`
	CreatedAt  time.Time       `gorm:"type:timestamptz;autoCreateTime;index:idx_alerts_kind_time,priority:2" json:"created_at"`
}

func (Alert) TableName() string { return "alerts" }
