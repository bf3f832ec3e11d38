package models

import "time"

// WalletSettlement records one resolved position outcome for a wallet.
// When settlements exist for a wallet its win rate is computed from them;
// otherwise the volume-tier estimate applies.
type WalletSettlement struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Wallet    string    `gorm:"size:80;index:idx_settlements_wallet;not null" json:"wallet"`
	MarketID  string    `gorm:"size:120;not null" json:"market_id"`
	Won       bool      `gorm:"not null" json:"won"`
	SettledAt time.Time `gorm:"type:timestamptz;not null" json:"settled_at"`
}

func (WalletSettlement) TableName() string { return "wallet_settlements" }
