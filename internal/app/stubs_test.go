package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"predictwatch/internal/models"
	"predictwatch/internal/storage"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// stubRepo is a test-only in-memory implementation of storage.Repository.
type stubRepo struct {
	mu sync.Mutex

	trades      map[string]models.Trade // keyed by identity
	alerts      []models.Alert
	alertKeys   map[string]struct{}
	snapshots   map[string]models.MarketVolumeSnapshot // market|hour
	tracked     map[string]models.TrackedWallet
	settlements []models.WalletSettlement
	settings    map[string][]byte
	nextAlertID uint64

	insertTradeErr  error
	insertAlertErr  error
	markNotifyErr   error
	aggregateErr    error
	markNotifyCalls int
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		trades:    make(map[string]models.Trade),
		alertKeys: make(map[string]struct{}),
		snapshots: make(map[string]models.MarketVolumeSnapshot),
		tracked:   make(map[string]models.TrackedWallet),
		settings:  make(map[string][]byte),
	}
}

var _ storage.Repository = (*stubRepo)(nil)

func (s *stubRepo) InsertTrade(ctx context.Context, trade *models.Trade) (bool, error) {
	if s.insertTradeErr != nil {
		return false, s.insertTradeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[trade.Identity]; ok {
		return false, nil
	}
	trade.ID = uint64(len(s.trades) + 1)
	s.trades[trade.Identity] = *trade
	return true, nil
}

func (s *stubRepo) RecentIdentities(ctx context.Context, since time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, t := range s.trades {
		if !t.ExecutedAt.Before(since) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *stubRepo) TradesSince(ctx context.Context, since time.Time) ([]models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Trade
	for _, t := range s.trades {
		if !t.ExecutedAt.Before(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.Before(out[j].ExecutedAt) })
	return out, nil
}

func (s *stubRepo) WalletAggregate(ctx context.Context, wallet string) (storage.WalletAggregate, error) {
	if s.aggregateErr != nil {
		return storage.WalletAggregate{}, s.aggregateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := storage.WalletAggregate{TotalVolume: decimal.Zero}
	for _, t := range s.trades {
		if t.Wallet == wallet {
			agg.TotalBets++
			agg.TotalVolume = agg.TotalVolume.Add(t.Amount)
		}
	}
	return agg, nil
}

func (s *stubRepo) WalletSettlements(ctx context.Context, wallet string) (storage.SettlementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rec storage.SettlementRecord
	for _, st := range s.settlements {
		if st.Wallet != wallet {
			continue
		}
		if st.Won {
			rec.Wins++
		} else {
			rec.Losses++
		}
	}
	return rec, nil
}

func (s *stubRepo) InsertSettlement(ctx context.Context, settlement *models.WalletSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, *settlement)
	return nil
}

func (s *stubRepo) TopWalletsByVolume(ctx context.Context, since time.Time, limit int) ([]storage.TopWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byWallet := make(map[string]*storage.TopWallet)
	for _, t := range s.trades {
		if t.ExecutedAt.Before(since) {
			continue
		}
		tw, ok := byWallet[t.Wallet]
		if !ok {
			tw = &storage.TopWallet{Wallet: t.Wallet, TotalVolume: decimal.Zero}
			byWallet[t.Wallet] = tw
		}
		tw.TotalBets++
		tw.TotalVolume = tw.TotalVolume.Add(t.Amount)
	}
	var out []storage.TopWallet
	for _, tw := range byWallet {
		out = append(out, *tw)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalVolume.GreaterThan(out[j].TotalVolume) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) MarketActivity(ctx context.Context, marketID string, since time.Time) (storage.MarketActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	act := storage.MarketActivity{
		Volume:    decimal.Zero,
		YesVolume: decimal.Zero,
		NoVolume:  decimal.Zero,
	}
	for _, t := range s.trades {
		if t.MarketID != marketID || t.ExecutedAt.Before(since) {
			continue
		}
		act.Volume = act.Volume.Add(t.Amount)
		act.TradeCount++
		switch t.Side {
		case string(SideYes):
			act.YesVolume = act.YesVolume.Add(t.Amount)
		case string(SideNo):
			act.NoVolume = act.NoVolume.Add(t.Amount)
		}
	}
	return act, nil
}

func snapshotKey(marketID string, hour time.Time) string {
	return marketID + "|" + hour.UTC().Format(time.RFC3339)
}

func (s *stubRepo) UpsertVolumeSnapshot(ctx context.Context, snapshot *models.MarketVolumeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey(snapshot.MarketID, snapshot.HourBucket)] = *snapshot
	return nil
}

func (s *stubRepo) AverageSnapshotVolume(ctx context.Context, marketID string, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	count := 0
	for _, snap := range s.snapshots {
		if snap.MarketID != marketID || snap.HourBucket.Before(since) {
			continue
		}
		sum = sum.Add(snap.Volume)
		count++
	}
	if count == 0 {
		return decimal.Zero, nil
	}
	return sum.Div(decimal.NewFromInt(int64(count))), nil
}

func (s *stubRepo) InsertAlert(ctx context.Context, alert *models.Alert) (bool, error) {
	if s.insertAlertErr != nil {
		return false, s.insertAlertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alertKeys[alert.DedupKey]; ok {
		return false, nil
	}
	s.nextAlertID++
	alert.ID = s.nextAlertID
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	s.alertKeys[alert.DedupKey] = struct{}{}
	s.alerts = append(s.alerts, *alert)
	return true, nil
}

func (s *stubRepo) MarkAlertNotified(ctx context.Context, id uint64, at time.Time) error {
	s.markNotifyCalls++
	if s.markNotifyErr != nil {
		return s.markNotifyErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			t := at
			s.alerts[i].NotifiedAt = &t
		}
	}
	return nil
}

func (s *stubRepo) UnnotifiedAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Alert
	for _, a := range s.alerts {
		if a.NotifiedAt == nil {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *stubRepo) HasWhaleAlertSince(ctx context.Context, marketID, wallet string, amount decimal.Decimal, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.Kind == models.AlertKindWhale &&
			a.MarketID == marketID &&
			a.Wallet == wallet &&
			a.Amount.Equal(amount) &&
			!a.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) AlertCountsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int64)
	for _, a := range s.alerts {
		if !a.CreatedAt.Before(since) {
			counts[a.Kind]++
		}
	}
	return counts, nil
}

func (s *stubRepo) ListTrackedWallets(ctx context.Context) ([]models.TrackedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TrackedWallet
	for _, w := range s.tracked {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

func (s *stubRepo) UpsertTrackedWallet(ctx context.Context, wallet *models.TrackedWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked[wallet.Wallet] = *wallet
	return nil
}

func (s *stubRepo) DeleteTrackedWallet(ctx context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tracked, wallet)
	return nil
}

func (s *stubRepo) GetSetting(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[key], nil
}

func (s *stubRepo) PutSetting(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *stubRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, t := range s.trades {
		if t.ExecutedAt.Before(cutoff) {
			delete(s.trades, id)
			removed++
		}
	}
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if a.CreatedAt.Before(cutoff) {
			delete(s.alertKeys, a.DedupKey)
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return removed, nil
}
