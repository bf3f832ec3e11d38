package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

// Store implements storage.Repository on gorm/postgres.
type Store struct {
	db *gorm.DB
}

var _ storage.Repository = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InsertTrade(ctx context.Context, trade *models.Trade) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoNothing: true,
		}).
		Create(trade)
	if res.Error != nil {
		return false, fmt.Errorf("insert trade: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) RecentIdentities(ctx context.Context, since time.Time, limit int) ([]string, error) {
	var identities []string
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Where("executed_at >= ?", since).
		Order("executed_at DESC").
		Limit(normalizeLimit(limit, 100000)).
		Pluck("identity", &identities).Error
	if err != nil {
		return nil, fmt.Errorf("recent identities: %w", err)
	}
	return identities, nil
}

func (s *Store) TradesSince(ctx context.Context, since time.Time) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("executed_at >= ?", since).
		Order("executed_at ASC").
		Find(&trades).Error
	if err != nil {
		return nil, fmt.Errorf("trades since: %w", err)
	}
	return trades, nil
}

func (s *Store) WalletAggregate(ctx context.Context, wallet string) (storage.WalletAggregate, error) {
	var row struct {
		TotalBets   int64
		TotalVolume decimal.Decimal
	}
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("COUNT(*) AS total_bets, COALESCE(SUM(amount), 0) AS total_volume").
		Where("wallet = ?", wallet).
		Scan(&row).Error
	if err != nil {
		return storage.WalletAggregate{}, fmt.Errorf("wallet aggregate: %w", err)
	}
	return storage.WalletAggregate{TotalBets: row.TotalBets, TotalVolume: row.TotalVolume}, nil
}

func (s *Store) WalletSettlements(ctx context.Context, wallet string) (storage.SettlementRecord, error) {
	var row struct {
		Wins   int64
		Losses int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.WalletSettlement{}).
		Select("COALESCE(SUM(CASE WHEN won THEN 1 ELSE 0 END), 0) AS wins, COALESCE(SUM(CASE WHEN won THEN 0 ELSE 1 END), 0) AS losses").
		Where("wallet = ?", wallet).
		Scan(&row).Error
	if err != nil {
		return storage.SettlementRecord{}, fmt.Errorf("wallet settlements: %w", err)
	}
	return storage.SettlementRecord{Wins: row.Wins, Losses: row.Losses}, nil
}

func (s *Store) InsertSettlement(ctx context.Context, settlement *models.WalletSettlement) error {
	if err := s.db.WithContext(ctx).Create(settlement).Error; err != nil {
		return fmt.Errorf("insert settlement: %w", err)
	}
	return nil
}

func (s *Store) TopWalletsByVolume(ctx context.Context, since time.Time, limit int) ([]storage.TopWallet, error) {
	var rows []storage.TopWallet
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("wallet, COUNT(*) AS total_bets, COALESCE(SUM(amount), 0) AS total_volume").
		Where("executed_at >= ?", since).
		Group("wallet").
		Order("total_volume DESC").
		Limit(normalizeLimit(limit, 100)).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("top wallets: %w", err)
	}
	return rows, nil
}

func (s *Store) MarketActivity(ctx context.Context, marketID string, since time.Time) (storage.MarketActivity, error) {
	var row struct {
		Volume     decimal.Decimal
		YesVolume  decimal.Decimal
		NoVolume   decimal.Decimal
		TradeCount int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Trade{}).
		Select("COALESCE(SUM(amount), 0) AS volume, "+
			"COALESCE(SUM(CASE WHEN side = 'YES' THEN amount ELSE 0 END), 0) AS yes_volume, "+
			"COALESCE(SUM(CASE WHEN side = 'NO' THEN amount ELSE 0 END), 0) AS no_volume, "+
			"COUNT(*) AS trade_count").
		Where("market_id = ? AND executed_at >= ?", marketID, since).
		Scan(&row).Error
	if err != nil {
		return storage.MarketActivity{}, fmt.Errorf("market activity: %w", err)
	}
	return storage.MarketActivity{
		Volume:     row.Volume,
		YesVolume:  row.YesVolume,
		NoVolume:   row.NoVolume,
		TradeCount: row.TradeCount,
	}, nil
}

func (s *Store) UpsertVolumeSnapshot(ctx context.Context, snapshot *models.MarketVolumeSnapshot) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "market_id"}, {Name: "hour_bucket"}},
			DoUpdates: clause.AssignmentColumns([]string{"volume", "yes_volume", "no_volume", "trade_count"}),
		}).
		Create(snapshot).Error
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (s *Store) AverageSnapshotVolume(ctx context.Context, marketID string, since time.Time) (decimal.Decimal, error) {
	var row struct {
		Avg decimal.NullDecimal
	}
	err := s.db.WithContext(ctx).
		Model(&models.MarketVolumeSnapshot{}).
		Select("AVG(volume) AS avg").
		Where("market_id = ? AND hour_bucket >= ?", marketID, since).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("average snapshot volume: %w", err)
	}
	if !row.Avg.Valid {
		return decimal.Zero, nil
	}
	return row.Avg.Decimal, nil
}

func (s *Store) InsertAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedup_key"}},
			DoNothing: true,
		}).
		Create(alert)
	if res.Error != nil {
		return false, fmt.Errorf("insert alert: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) MarkAlertNotified(ctx context.Context, id uint64, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("id = ?", id).
		Update("notified_at", at).Error
	if err != nil {
		return fmt.Errorf("mark alert notified: %w", err)
	}
	return nil
}

func (s *Store) UnnotifiedAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("notified_at IS NULL").
		Order("created_at ASC").
		Limit(normalizeLimit(limit, 100)).
		Find(&alerts).Error
	if err != nil {
		return nil, fmt.Errorf("unnotified alerts: %w", err)
	}
	return alerts, nil
}

func (s *Store) HasWhaleAlertSince(ctx context.Context, marketID, wallet string, amount decimal.Decimal, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Where("kind = ? AND market_id = ? AND wallet = ? AND amount = ? AND created_at >= ?",
			models.AlertKindWhale, marketID, wallet, amount, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("has whale alert: %w", err)
	}
	return count > 0, nil
}

func (s *Store) AlertCountsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	err := s.db.WithContext(ctx).
		Model(&models.Alert{}).
		Select("kind, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("alert counts: %w", err)
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Kind] = r.Count
	}
	return counts, nil
}

func (s *Store) ListTrackedWallets(ctx context.Context) ([]models.TrackedWallet, error) {
	var wallets []models.TrackedWallet
	err := s.db.WithContext(ctx).
		Order("added_at ASC").
		Find(&wallets).Error
	if err != nil {
		return nil, fmt.Errorf("list tracked wallets: %w", err)
	}
	return wallets, nil
}

func (s *Store) UpsertTrackedWallet(ctx context.Context, wallet *models.TrackedWallet) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "wallet"}},
			DoUpdates: clause.AssignmentColumns([]string{"nickname"}),
		}).
		Create(wallet).Error
	if err != nil {
		return fmt.Errorf("upsert tracked wallet: %w", err)
	}
	return nil
}

func (s *Store) DeleteTrackedWallet(ctx context.Context, wallet string) error {
	err := s.db.WithContext(ctx).
		Where("wallet = ?", wallet).
		Delete(&models.TrackedWallet{}).Error
	if err != nil {
		return fmt.Errorf("delete tracked wallet: %w", err)
	}
	return nil
}

func (s *Store) GetSetting(ctx context.Context, key string) ([]byte, error) {
	var setting models.SystemSetting
	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return []byte(setting.Value), nil
}

func (s *Store) PutSetting(ctx context.Context, key string, value []byte) error {
	setting := models.SystemSetting{Key: key, Value: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
	if err != nil {
		return fmt.Errorf("put setting: %w", err)
	}
	return nil
}

func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64

	res := s.db.WithContext(ctx).Where("executed_at < ?", cutoff).Delete(&models.Trade{})
	if res.Error != nil {
		return total, fmt.Errorf("prune trades: %w", res.Error)
	}
	total += res.RowsAffected

	res = s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Alert{})
	if res.Error != nil {
		return total, fmt.Errorf("prune alerts: %w", res.Error)
	}
	total += res.RowsAffected

	res = s.db.WithContext(ctx).Where("hour_bucket < ?", cutoff).Delete(&models.MarketVolumeSnapshot{})
	if res.Error != nil {
		return total, fmt.Errorf("prune snapshots: %w", res.Error)
	}
	total += res.RowsAffected

	return total, nil
}

func normalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
