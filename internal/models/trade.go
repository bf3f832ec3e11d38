package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one admitted canonical trade event. The unique identity index is
// what makes admission idempotent; the table doubles as the raw ledger the
// wallet and market aggregates query.
type Trade struct {
	ID         uint64              `gorm:"primaryKey;autoIncrement" json:"id"`
	Identity   string              `gorm:"size:160;uniqueIndex:uq_trades_identity;not null" json:"identity"`
	MarketID   string              `gorm:"size:120;index:idx_trades_market_time,priority:1;not null" json:"market_id"`
	Wallet     string              `gorm:"size:80;index:idx_trades_wallet;not null" json:"wallet"`
	Side       string              `gorm:"size:8;not null" json:"side"`
	Amount     decimal.Decimal     `gorm:"type:numeric(30,10);not null" json:"amount"`
	Price      decimal.NullDecimal `gorm:"type:numeric(20,10)" json:"price"`
	ExecutedAt time.Time           `gorm:"type:timestamptz;index:idx_trades_market_time,priority:2;not null" json:"executed_at"`
	CreatedAt  time.Time           `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
}

func (Trade) TableName() string { return "trades" }
