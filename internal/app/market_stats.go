package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// MarketStatsProvider answers market-level volume questions from the trade
// ledger and the hourly snapshot history.
type MarketStatsProvider struct {
	logger *zap.Logger
	repo   storage.Repository
	now    func() time.Time
}

func NewMarketStatsProvider(logger *zap.Logger, repo storage.Repository) *MarketStatsProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketStatsProvider{logger: logger, repo: repo, now: time.Now}
}

// Activity returns 24h ledger activity for a market.
func (p *MarketStatsProvider) Activity(ctx context.Context, marketID string) (storage.MarketActivity, error) {
	return p.repo.MarketActivity(ctx, marketID, p.now().Add(-24*time.Hour))
}

// AverageVolume returns the mean snapshot volume over the trailing window.
// Zero when no snapshots exist yet.
func (p *MarketStatsProvider) AverageVolume(ctx context.Context, marketID string, hours int) (decimal.Decimal, error) {
	if hours <= 0 {
		hours = 24
	}
	return p.repo.AverageSnapshotVolume(ctx, marketID, p.now().Add(-time.Duration(hours)*time.Hour))
}

// RecordSnapshot writes the current hour's volume bucket for a market.
// Re-recording within the same hour overwrites, keeping one row per hour.
func (p *MarketStatsProvider) RecordSnapshot(ctx context.Context, marketID string, volume, yesVolume, noVolume decimal.Decimal, tradeCount int64) error {
	snapshot := &models.MarketVolumeSnapshot{
		MarketID:   marketID,
		HourBucket: p.now().UTC().Truncate(time.Hour),
		Volume:     volume,
		YesVolume:  yesVolume,
		NoVolume:   noVolume,
		TradeCount: tradeCount,
	}
	return p.repo.UpsertVolumeSnapshot(ctx, snapshot)
}
