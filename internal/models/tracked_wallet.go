package models

import "time"

// TrackedWallet is a wallet on the operator watch list.
type TrackedWallet struct {
	Wallet   string    `gorm:"primaryKey;size:80" json:"wallet"`
	Nickname string    `gorm:"size:80" json:"nickname"`
	AddedAt  time.Time `gorm:"type:timestamptz;autoCreateTime" json:"added_at"`
}

func (TrackedWallet) TableName() string { return "tracked_wallets" }
