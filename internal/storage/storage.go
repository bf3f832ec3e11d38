package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"predictwatch/internal/models"
)

// WalletAggregate summarizes a wallet's activity in the trade ledger.
type WalletAggregate struct {
	TotalBets   int64
	TotalVolume decimal.Decimal
}

// SettlementRecord summarizes a wallet's resolved positions.
type SettlementRecord struct {
	Wins   int64
	Losses int64
}

// MarketActivity summarizes one market's ledger rows over a window.
type MarketActivity struct {
	Volume     decimal.Decimal
	YesVolume  decimal.Decimal
	NoVolume   decimal.Decimal
	TradeCount int64
}

// TopWallet is one row of the top-wallets-by-volume read.
type TopWallet struct {
	Wallet      string
	TotalBets   int64
	TotalVolume decimal.Decimal
}

// Repository is the persistence surface for the alert engine.
type Repository interface {
	// Trade ledger / dedup.
	InsertTrade(ctx context.Context, trade *models.Trade) (bool, error)
	RecentIdentities(ctx context.Context, since time.Time, limit int) ([]string, error)
	TradesSince(ctx context.Context, since time.Time) ([]models.Trade, error)

	// Wallet aggregates.
	WalletAggregate(ctx context.Context, wallet string) (WalletAggregate, error)
	WalletSettlements(ctx context.Context, wallet string) (SettlementRecord, error)
	InsertSettlement(ctx context.Context, settlement *models.WalletSettlement) error
	TopWalletsByVolume(ctx context.Context, since time.Time, limit int) ([]TopWallet, error)

	// Market aggregates.
	MarketActivity(ctx context.Context, marketID string, since time.Time) (MarketActivity, error)
	UpsertVolumeSnapshot(ctx context.Context, snapshot *models.MarketVolumeSnapshot) error
	AverageSnapshotVolume(ctx context.Context, marketID string, since time.Time) (decimal.Decimal, error)

	// Alerts.
	InsertAlert(ctx context.Context, alert *models.Alert) (bool, error)
	MarkAlertNotified(ctx context.Context, id uint64, at time.Time) error
	UnnotifiedAlerts(ctx context.Context, limit int) ([]models.Alert, error)
	HasWhaleAlertSince(ctx context.Context, marketID, wallet string, amount decimal.Decimal, since time.Time) (bool, error)
	AlertCountsSince(ctx context.Context, since time.Time) (map[string]int64, error)

	// Tracked wallets.
	ListTrackedWallets(ctx context.Context) ([]models.TrackedWallet, error)
	UpsertTrackedWallet(ctx context.Context, wallet *models.TrackedWallet) error
	DeleteTrackedWallet(ctx context.Context, wallet string) error

	// Settings.
	GetSetting(ctx context.Context, key string) ([]byte, error)
	PutSetting(ctx context.Context, key string, value []byte) error

	// Retention.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
